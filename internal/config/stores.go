package config

// StoreSettings holds the sync settings of one store. Unset fields inherit the defaults.
type StoreSettings struct {
	LogEnabled        *bool  `yaml:"log_enabled"`
	CronExportEnabled *bool  `yaml:"cron_export_enabled"`
	ListID            int64  `yaml:"list_id"`
	DefaultGroupID    *int64 `yaml:"default_group_id"`
}

// StoresConfig holds default store settings and per-store overrides keyed by store id
type StoresConfig struct {
	Default   StoreSettings           `yaml:"default"`
	Overrides map[int64]StoreSettings `yaml:"overrides"`
}

func (s *StoresConfig) lookup(storeID *int64) (StoreSettings, bool) {
	if storeID == nil || s.Overrides == nil {
		return StoreSettings{}, false
	}
	settings, ok := s.Overrides[*storeID]
	return settings, ok
}

// IsLogEnabled reports whether optional journal lines are written
func (s *StoresConfig) IsLogEnabled() bool {
	return s.Default.LogEnabled != nil && *s.Default.LogEnabled
}

// IsCronExportEnabled reports whether auto-sync jobs of a store may run from cron.
// Disabled unless configured.
func (s *StoresConfig) IsCronExportEnabled(storeID *int64) bool {
	if override, ok := s.lookup(storeID); ok && override.CronExportEnabled != nil {
		return *override.CronExportEnabled
	}
	return s.Default.CronExportEnabled != nil && *s.Default.CronExportEnabled
}

// ListID returns the list configured for a store, 0 when none
func (s *StoresConfig) ListID(storeID *int64) int64 {
	if override, ok := s.lookup(storeID); ok && override.ListID != 0 {
		return override.ListID
	}
	return s.Default.ListID
}

// DefaultGroupID returns the group substituted for jobs without one
func (s *StoresConfig) DefaultGroupID(storeID *int64) (int64, bool) {
	if override, ok := s.lookup(storeID); ok && override.DefaultGroupID != nil {
		return *override.DefaultGroupID, true
	}
	if s.Default.DefaultGroupID != nil {
		return *s.Default.DefaultGroupID, true
	}
	return 0, false
}
