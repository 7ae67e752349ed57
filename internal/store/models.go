package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PersonKind is the role of a person in a course.
type PersonKind string

const (
	PersonKindStudent PersonKind = "student"
	PersonKindTA      PersonKind = "ta"
	PersonKindStaff   PersonKind = "staff"
)

// Custom is free-form state that is persisted as a JSON object.
type Custom map[string]any

// Value marshals the map to JSON for persistence.
func (c Custom) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}

	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal custom state: %w", err)
	}

	return data, nil
}

// Scan unmarshals a JSON object into the map.
func (c *Custom) Scan(value any) error {
	var data []byte

	switch v := value.(type) {
	case nil:
		*c = Custom{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for custom state", value)
	}

	if len(data) == 0 {
		*c = Custom{}
		return nil
	}

	m := Custom{}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("unmarshal custom state: %w", err)
	}

	*c = m

	return nil
}

// Clone returns a deep copy.
// The copy has the same shape as a value that was read back from the
// database, nested objects are of type map[string]any.
func (c Custom) Clone() Custom {
	if c == nil {
		return Custom{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("custom state is not json serializable: %s", err))
	}

	result := Custom{}
	if err := json.Unmarshal(data, &result); err != nil {
		panic(fmt.Sprintf("unmarshaling custom state failed: %s", err))
	}

	return result
}

// Person is a course participant, identified by its github username.
type Person struct {
	ID        string
	Org       string
	Kind      PersonKind
	URL       string
	Custom    Custom
	CreatedAt time.Time
}

// Team is a github team of a course, its ID is the team name.
type Team struct {
	ID      string
	Org     string
	Members []string
	// URL is empty until the remote team exists.
	URL    string
	Custom Custom
}

// Repository is a github repository of a course, its ID is the repository
// name.
type Repository struct {
	ID  string
	Org string
	// URL is empty until the remote repository exists.
	URL     string
	TeamIDs []string
	Custom  Custom
}

// Deliverable is a stage of a course.
type Deliverable struct {
	ID                string
	Org               string
	OpenTimestamp     time.Time
	CloseTimestamp    time.Time
	GradesReleased    bool
	GradingDelay      time.Duration
	TeamMinSize       int
	TeamMaxSize       int
	StudentsFormTeams bool
	TemplateURL       string
}

// Grade is the grade of a person for a deliverable.
type Grade struct {
	PersonID  string
	DelivID   string
	Org       string
	Score     float64
	Comment   string
	URL       string
	Timestamp time.Time
	Custom    Custom
}

// Auth is the authentication token of a person.
type Auth struct {
	PersonID string
	Org      string
	Token    string
}
