package config

import (
	"fmt"
	"time"
)

// EntitySettings holds the sync profile for one reference-entity type.
type EntitySettings struct {
	Name     string // sync engine key, e.g. "users"
	Resource string // table-API resource name
	Table    string // local table name
	Fields   []string

	// BoolFields are normalized to real booleans before fingerprinting.
	BoolFields []string

	// SafetyMargin is subtracted from the stored watermark to tolerate
	// clock skew and late-arriving updates.
	SafetyMargin time.Duration

	// DefaultLookback bounds the first incremental fetch when no rows
	// have ever been persisted for this entity type.
	DefaultLookback time.Duration

	// InactiveWindow bounds the inactive-records portion of a full sync.
	InactiveWindow time.Duration
}

// ReferenceColumns describes where a dependent table points at a
// reference table, used by the missing-reference repair path.
type ReferenceColumns struct {
	DependentTable string
	Columns        []string
}

// RelatedSettings describes a table extracted per incident batch, keyed
// by a reference column pointing back at the incident.
type RelatedSettings struct {
	Name      string
	Resource  string
	Table     string
	Fields    []string
	RefColumn string
}

// SyncSettings is the full sync configuration for the ETL run.
type SyncSettings struct {
	Users     EntitySettings
	Companies EntitySettings

	// Incidents is the windowed (non-watermark) extraction profile.
	Incidents EntitySettings

	// Related are the per-incident child tables pulled in id batches.
	Related []RelatedSettings

	// ConfigTables are small full-snapshot tables (SLA definitions,
	// assignment groups) refreshed on demand.
	ConfigTables []EntitySettings

	// BatchSize bounds id-list filter queries so the generated
	// sysparm_query stays within URL limits.
	BatchSize int

	UserRefs    ReferenceColumns
	CompanyRefs ReferenceColumns
}

// ByName resolves an entity settings block by its sync key.
func (s *SyncSettings) ByName(name string) (EntitySettings, error) {
	switch name {
	case s.Users.Name:
		return s.Users, nil
	case s.Companies.Name:
		return s.Companies, nil
	}
	return EntitySettings{}, fmt.Errorf("unknown entity type %q", name)
}

// LoadSyncSettings returns the sync configuration, with durations and
// batch size overridable from the environment.
func LoadSyncSettings() *SyncSettings {
	return &SyncSettings{
		Users: EntitySettings{
			Name:     "users",
			Resource: "sys_user",
			Table:    "sys_user",
			Fields: []string{
				// Basic
				"sys_id", "user_name", "name", "first_name", "last_name", "middle_name",
				// Contact
				"email", "phone", "mobile_phone",
				// Organizational
				"company", "department", "location", "manager", "title",
				// Status
				"active", "locked_out", "web_service_access_only",
				// Login
				"last_login", "last_login_time", "failed_attempts",
				// Preferences
				"time_zone", "date_format", "time_format",
				// Audit
				"sys_created_on", "sys_created_by", "sys_updated_on", "sys_updated_by",
			},
			SafetyMargin:    getDurationEnv("SYNC_USERS_SAFETY_MARGIN", time.Hour),
			DefaultLookback: getDurationEnv("SYNC_USERS_LOOKBACK", 7*24*time.Hour),
			InactiveWindow:  getDurationEnv("SYNC_INACTIVE_WINDOW", 30*24*time.Hour),
		},
		Companies: EntitySettings{
			Name:     "companies",
			Resource: "core_company",
			Table:    "sys_company",
			Fields: []string{
				"sys_id", "name", "parent",
				"customer", "vendor", "manufacturer",
				"phone", "fax", "website",
				"street", "city", "state", "zip", "country",
				"federal_tax_id",
				"active",
				"sys_created_on", "sys_created_by", "sys_updated_on", "sys_updated_by",
			},
			BoolFields:      []string{"customer", "vendor", "manufacturer", "active"},
			SafetyMargin:    getDurationEnv("SYNC_COMPANIES_SAFETY_MARGIN", 2*time.Hour),
			DefaultLookback: getDurationEnv("SYNC_COMPANIES_LOOKBACK", 30*24*time.Hour),
			InactiveWindow:  getDurationEnv("SYNC_INACTIVE_WINDOW", 30*24*time.Hour),
		},

		Incidents: EntitySettings{
			Name:     "incidents",
			Resource: "incident",
			Table:    "incident",
			Fields: []string{
				"sys_id", "number", "short_description",
				"state", "incident_state", "priority", "urgency", "impact", "severity",
				"category", "subcategory",
				"company", "caller_id", "opened_by", "resolved_by", "assigned_to", "assignment_group",
				"opened_at", "resolved_at", "closed_at",
				"close_code", "close_notes",
				"reassignment_count", "reopen_count",
				"active", "made_sla",
				"sys_created_on", "sys_created_by", "sys_updated_on", "sys_updated_by",
			},
			BoolFields: []string{"active", "made_sla"},
		},

		Related: []RelatedSettings{
			{
				Name:      "incident tasks",
				Resource:  "incident_task",
				Table:     "incident_task",
				RefColumn: "incident",
				Fields: []string{
					"sys_id", "number", "incident", "short_description",
					"state", "priority", "assigned_to", "assignment_group",
					"due_date", "closed_at", "active",
					"sys_created_on", "sys_updated_on",
				},
			},
			{
				Name:      "incident SLAs",
				Resource:  "task_sla",
				Table:     "task_sla",
				RefColumn: "task",
				Fields: []string{
					"sys_id", "task", "sla", "stage",
					"start_time", "end_time", "planned_end_time",
					"business_percentage", "business_duration",
					"has_breached", "active",
					"sys_created_on", "sys_updated_on",
				},
			},
			{
				Name:      "time worked",
				Resource:  "task_time_worked",
				Table:     "task_time_worked",
				RefColumn: "task",
				Fields: []string{
					"sys_id", "task", "user", "comments",
					"time_in_seconds", "time_worked",
					"sys_created_on", "sys_updated_on",
				},
			},
		},

		ConfigTables: []EntitySettings{
			{
				Name:     "SLA definitions",
				Resource: "contract_sla",
				Table:    "contract_sla",
				Fields: []string{
					"sys_id", "name", "type", "target", "duration", "duration_type",
					"schedule", "timezone", "active",
					"sys_created_on", "sys_updated_on",
				},
				BoolFields: []string{"active"},
			},
			{
				Name:     "assignment groups",
				Resource: "sys_user_group",
				Table:    "sys_user_group",
				Fields: []string{
					"sys_id", "name", "description", "email",
					"manager", "parent", "type", "active",
					"sys_created_on", "sys_updated_on",
				},
				BoolFields: []string{"active"},
			},
		},

		BatchSize: getIntEnv("SYNC_BATCH_SIZE", 50),

		UserRefs: ReferenceColumns{
			DependentTable: "incident",
			Columns:        []string{"resolved_by", "opened_by", "caller_id"},
		},
		CompanyRefs: ReferenceColumns{
			DependentTable: "incident",
			Columns:        []string{"company"},
		},
	}
}
