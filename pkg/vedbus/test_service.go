package vedbus

import (
	"sync"
)

// ServiceFactory builds an ItemService once the item set is known. The real
// factory closes over a bus connection and service name; tests substitute a
// TestDbusService.
type ServiceFactory func(specs []ItemSpec, onSet SetValueFunc) (ItemService, error)

// TestDbusService is an in-memory ItemService for tests. It records the
// registered items and every Update batch, and can replay remote SetValue
// calls into the registered callback.
type TestDbusService struct {
	mu         sync.Mutex
	failNext   error
	byPath     map[string]*ItemSpec
	order      []string
	onSet      SetValueFunc
	updates    [][]Change
	closeCount int
}

func CreateTestDbusService() *TestDbusService {
	return &TestDbusService{
		byPath: make(map[string]*ItemSpec),
	}
}

// Factory returns a ServiceFactory that hands out this recorder.
func (s *TestDbusService) Factory() ServiceFactory {
	return func(specs []ItemSpec, onSet SetValueFunc) (ItemService, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failNext != nil {
			err := s.failNext
			s.failNext = nil
			return nil, err
		}
		s.byPath = make(map[string]*ItemSpec, len(specs))
		s.order = s.order[:0]
		for _, spec := range specs {
			spec := spec
			s.byPath[spec.Path] = &spec
			s.order = append(s.order, spec.Path)
		}
		s.onSet = onSet
		return s, nil
	}
}

// FailNextRegister makes the next Factory call fail with err.
func (s *TestDbusService) FailNextRegister(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *TestDbusService) Update(changes []Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, append([]Change(nil), changes...))
	for _, change := range changes {
		if item, ok := s.byPath[change.Path]; ok {
			item.Value = change.Value
			item.Text = change.Text
		}
	}
}

func (s *TestDbusService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return nil
}

// InjectSetValue plays a remote write against the service, returning the
// BusItem reply code the real service would produce.
func (s *TestDbusService) InjectSetValue(path string, value any) int32 {
	s.mu.Lock()
	item, ok := s.byPath[path]
	onSet := s.onSet
	s.mu.Unlock()
	if !ok || !item.Writable {
		return setValueNotWritable
	}
	if onSet == nil {
		return setValueRejected
	}
	if err := onSet(path, value); err != nil {
		return setValueRejected
	}
	return setValueOK
}

func (s *TestDbusService) Registered() []ItemSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	specs := make([]ItemSpec, 0, len(s.order))
	for _, path := range s.order {
		specs = append(specs, *s.byPath[path])
	}
	return specs
}

// Item returns the current state of one registered item.
func (s *TestDbusService) Item(path string) (ItemSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byPath[path]
	if !ok {
		return ItemSpec{}, false
	}
	return *item, true
}

func (s *TestDbusService) UpdateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func (s *TestDbusService) LastUpdate() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return nil
	}
	return s.updates[len(s.updates)-1]
}

func (s *TestDbusService) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}
