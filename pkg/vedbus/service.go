// Package vedbus publishes values on the D-Bus following the Venus OS
// com.victronenergy.BusItem conventions: one object per path plus a root
// object that aggregates them, with ItemsChanged signals on updates.
package vedbus

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	BusItemInterface   = "com.victronenergy.BusItem"
	itemsChangedMember = BusItemInterface + ".ItemsChanged"
)

// SetValue reply codes, matching the Venus BusItem convention.
const (
	setValueOK          = int32(0)
	setValueNotWritable = int32(1)
	setValueRejected    = int32(2)
)

// ItemSpec declares one object exported by the service, with its initial
// value and display text. A nil Value marks the item invalid.
type ItemSpec struct {
	Path     string
	Value    any
	Text     string
	Writable bool
}

// Change updates one already registered item.
type Change struct {
	Path  string
	Value any
	Text  string
}

// SetValueFunc handles a remote SetValue call. It runs on a bus dispatch
// goroutine, not on any actor goroutine. A nil error accepts the write; the
// written value is expected to flow back through Update.
type SetValueFunc func(path string, value any) error

// ItemService is the surface actors publish through.
type ItemService interface {
	Update(changes []Change)
	Close() error
}

// VeDbusService owns a com.victronenergy.* service name on an existing bus
// connection. The connection itself stays owned by the caller.
type VeDbusService struct {
	conn        *dbus.Conn
	serviceName string
	onSet       SetValueFunc
	logger      *zap.Logger

	mu    sync.RWMutex
	items map[string]*busItem
}

type busItem struct {
	svc      *VeDbusService
	path     string
	writable bool

	// guarded by svc.mu
	value any
	text  string
}

type rootItem struct {
	svc *VeDbusService
}

// NewVeDbusService exports all items and the root object on conn, then
// claims serviceName. Registration is all-or-nothing: any failure leaves no
// claimed name behind.
func NewVeDbusService(conn *dbus.Conn, serviceName string, specs []ItemSpec, onSet SetValueFunc, logger *zap.Logger) (*VeDbusService, error) {
	svc := &VeDbusService{
		conn:        conn,
		serviceName: serviceName,
		onSet:       onSet,
		logger:      logger.With(zap.String("service", serviceName)),
		items:       make(map[string]*busItem, len(specs)),
	}
	for _, spec := range specs {
		if !dbus.ObjectPath(spec.Path).IsValid() || spec.Path == "/" {
			return nil, fmt.Errorf("invalid item path %q", spec.Path)
		}
		if _, dup := svc.items[spec.Path]; dup {
			return nil, fmt.Errorf("duplicate item path %q", spec.Path)
		}
		item := &busItem{
			svc:      svc,
			path:     spec.Path,
			writable: spec.Writable,
			value:    spec.Value,
			text:     spec.Text,
		}
		if err := conn.Export(item, dbus.ObjectPath(spec.Path), BusItemInterface); err != nil {
			svc.unexport()
			return nil, fmt.Errorf("export %s: %w", spec.Path, err)
		}
		svc.items[spec.Path] = item
	}
	if err := conn.Export(&rootItem{svc: svc}, "/", BusItemInterface); err != nil {
		svc.unexport()
		return nil, fmt.Errorf("export root: %w", err)
	}

	reply, err := conn.RequestName(serviceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		svc.unexport()
		return nil, fmt.Errorf("request name %s: %w", serviceName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		svc.unexport()
		return nil, fmt.Errorf("name %s already taken", serviceName)
	}
	svc.logger.Debug("d-bus service registered", zap.Int("items", len(specs)))
	return svc, nil
}

// Update applies a batch of changes and emits a single ItemsChanged signal
// covering the whole batch. Unknown paths are dropped with a warning.
func (svc *VeDbusService) Update(changes []Change) {
	if len(changes) == 0 {
		return
	}
	body := make(map[string]map[string]dbus.Variant, len(changes))
	svc.mu.Lock()
	for _, change := range changes {
		item, ok := svc.items[change.Path]
		if !ok {
			svc.logger.Warn("update for unregistered path", zap.String("path", change.Path))
			continue
		}
		item.value = change.Value
		item.text = change.Text
		body[change.Path] = map[string]dbus.Variant{
			"Value": variantForValue(change.Value),
			"Text":  dbus.MakeVariant(change.Text),
		}
	}
	svc.mu.Unlock()
	if len(body) == 0 {
		return
	}
	if err := svc.conn.Emit("/", itemsChangedMember, body); err != nil {
		svc.logger.Warn("emit ItemsChanged", zap.Error(err))
	}
}

// Close releases the service name and unexports the objects. The bus
// connection is left open for the owner to close.
func (svc *VeDbusService) Close() error {
	svc.unexport()
	if _, err := svc.conn.ReleaseName(svc.serviceName); err != nil {
		return fmt.Errorf("release name %s: %w", svc.serviceName, err)
	}
	return nil
}

func (svc *VeDbusService) unexport() {
	for path := range svc.items {
		svc.conn.Export(nil, dbus.ObjectPath(path), BusItemInterface)
	}
	svc.conn.Export(nil, "/", BusItemInterface)
}

func (it *busItem) GetValue() (dbus.Variant, *dbus.Error) {
	it.svc.mu.RLock()
	defer it.svc.mu.RUnlock()
	return variantForValue(it.value), nil
}

func (it *busItem) GetText() (string, *dbus.Error) {
	it.svc.mu.RLock()
	defer it.svc.mu.RUnlock()
	return it.text, nil
}

func (it *busItem) SetValue(value dbus.Variant) (int32, *dbus.Error) {
	if !it.writable {
		return setValueNotWritable, nil
	}
	if it.svc.onSet == nil {
		return setValueRejected, nil
	}
	if err := it.svc.onSet(it.path, unwrapVariant(value)); err != nil {
		it.svc.logger.Debug("SetValue rejected", zap.String("path", it.path), zap.Error(err))
		return setValueRejected, nil
	}
	return setValueOK, nil
}

func (r *rootItem) GetItems() (map[string]map[string]dbus.Variant, *dbus.Error) {
	r.svc.mu.RLock()
	defer r.svc.mu.RUnlock()
	return r.svc.itemsDict(), nil
}

func (r *rootItem) GetValue() (map[string]dbus.Variant, *dbus.Error) {
	r.svc.mu.RLock()
	defer r.svc.mu.RUnlock()
	return r.svc.valuesDict(), nil
}

func (r *rootItem) GetText() (map[string]string, *dbus.Error) {
	r.svc.mu.RLock()
	defer r.svc.mu.RUnlock()
	return r.svc.textsDict(), nil
}

// itemsDict keys items by their full object path.
func (svc *VeDbusService) itemsDict() map[string]map[string]dbus.Variant {
	dict := make(map[string]map[string]dbus.Variant, len(svc.items))
	for path, item := range svc.items {
		dict[path] = map[string]dbus.Variant{
			"Value": variantForValue(item.value),
			"Text":  dbus.MakeVariant(item.text),
		}
	}
	return dict
}

// valuesDict keys values by path relative to the root, per the BusItem
// convention for GetValue on "/".
func (svc *VeDbusService) valuesDict() map[string]dbus.Variant {
	dict := make(map[string]dbus.Variant, len(svc.items))
	for path, item := range svc.items {
		dict[strings.TrimPrefix(path, "/")] = variantForValue(item.value)
	}
	return dict
}

func (svc *VeDbusService) textsDict() map[string]string {
	dict := make(map[string]string, len(svc.items))
	for path, item := range svc.items {
		dict[strings.TrimPrefix(path, "/")] = item.text
	}
	return dict
}

// variantForValue maps a native value onto the wire types Venus clients
// expect: integers as int32, nil as the invalid marker (empty int32 array).
func variantForValue(value any) dbus.Variant {
	switch tv := value.(type) {
	case nil:
		return dbus.MakeVariant([]int32{})
	case int64:
		return dbus.MakeVariant(int32(tv))
	case int:
		return dbus.MakeVariant(int32(tv))
	case int32:
		return dbus.MakeVariant(tv)
	case float64:
		return dbus.MakeVariant(tv)
	case string:
		return dbus.MakeVariant(tv)
	default:
		return dbus.MakeVariant(tv)
	}
}

// unwrapVariant flattens a variant received from the bus into a native
// value: any integer type to int64, bools to 0/1, nested variants unwrapped.
func unwrapVariant(v dbus.Variant) any {
	switch tv := v.Value().(type) {
	case dbus.Variant:
		return unwrapVariant(tv)
	case uint8:
		return int64(tv)
	case int16:
		return int64(tv)
	case uint16:
		return int64(tv)
	case int32:
		return int64(tv)
	case uint32:
		return int64(tv)
	case int64:
		return tv
	case uint64:
		return int64(tv)
	case bool:
		if tv {
			return int64(1)
		}
		return int64(0)
	default:
		return tv
	}
}
