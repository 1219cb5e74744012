package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"
	"github.com/sebmartin/ve-renogy-rover/pkg/rover_modbus"
)

const (
	defaultVersion = "0.0.0"
	serialPrefix   = "RNG-CTRL-RVR"
)

type fileSchema struct {
	CustomName      string `json:"custom_name"`
	ProductName     string `json:"product_name"`
	Serial          string `json:"serial"`
	FirmwareVersion string `json:"firmware_version"`
	HardwareVersion string `json:"hardware_version"`
}

// Store persists the device identity and the user-assigned name between
// runs, so the service can publish a stable identity while the controller
// is offline. Writes are atomic (temp file + rename).
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	current domain.DeviceDetails
}

func NewStore(path string, logger *zap.Logger) *Store {
	s := &Store{
		path:   path,
		logger: logger,
	}
	s.current = s.load()
	return s
}

// Current returns the cached details.
func (s *Store) Current() domain.DeviceDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCustomName stores and persists the user-assigned display name. On a
// persistence failure the in-memory value is kept so the running session
// stays consistent.
func (s *Store) SetCustomName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.CustomName = name
	return s.save()
}

// UpdateFromDevice merges a fresh identity read into the cache, tolerating
// partial data, and persists the result. The cached serial combines model
// and serial register so it stays unique across controller models.
func (s *Store) UpdateFromDevice(info *rover_modbus.DeviceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := s.current
	if info.ProductModel != "" {
		merged.ProductName = info.ProductModel
	}
	if info.ProductModel != "" && info.SerialNumber != "" {
		merged.Serial = fmt.Sprintf("%s_%s", info.ProductModel, info.SerialNumber)
	} else if info.SerialNumber != "" {
		merged.Serial = info.SerialNumber
	}
	if info.SoftwareVersion != "" {
		merged.FirmwareVersion = info.SoftwareVersion
	}
	if info.HardwareVersion != "" {
		merged.HardwareVersion = info.HardwareVersion
	}
	if merged == s.current {
		return nil
	}
	s.current = merged
	return s.save()
}

func (s *Store) load() domain.DeviceDetails {
	details := defaults()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("could not read settings file, using defaults",
				zap.String("path", s.path), zap.Error(err))
		}
		return details
	}
	var f fileSchema
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn("could not parse settings file, using defaults",
			zap.String("path", s.path), zap.Error(err))
		return details
	}
	details.CustomName = f.CustomName
	if f.ProductName != "" {
		details.ProductName = f.ProductName
	}
	if f.Serial != "" {
		details.Serial = f.Serial
	}
	if f.FirmwareVersion != "" {
		details.FirmwareVersion = f.FirmwareVersion
	}
	if f.HardwareVersion != "" {
		details.HardwareVersion = f.HardwareVersion
	}
	return details
}

// save writes the cache to disk. Callers hold s.mu.
func (s *Store) save() error {
	f := fileSchema{
		CustomName:      s.current.CustomName,
		ProductName:     s.current.ProductName,
		Serial:          s.current.Serial,
		FirmwareVersion: s.current.FirmwareVersion,
		HardwareVersion: s.current.HardwareVersion,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}
	return nil
}

func defaults() domain.DeviceDetails {
	return domain.DeviceDetails{
		ProductName:     domain.ProductName,
		Serial:          generatedSerial(),
		FirmwareVersion: defaultVersion,
		HardwareVersion: defaultVersion,
	}
}

// generatedSerial builds a recognizable placeholder until a real device has
// been read at least once.
func generatedSerial() string {
	return fmt.Sprintf("%s%04d", serialPrefix, 1000+rand.Intn(9000))
}
