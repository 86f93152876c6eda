package catalog

// UnlockType controls how a lesson becomes available.
type UnlockType string

const (
	UnlockByDate     UnlockType = "date"
	UnlockByProgress UnlockType = "progress"
	UnlockByBoth     UnlockType = "both"
)

// TaskType distinguishes tasks solved on an external grading surface
// from those solved inside the portal.
type TaskType string

const (
	TaskExternal TaskType = "external"
	TaskInternal TaskType = "internal"
)

// Lesson represents one course lesson loaded from YAML.
type Lesson struct {
	ID              int        `yaml:"id" json:"id"`
	Title           string     `yaml:"title" json:"title"`
	Description     string     `yaml:"description" json:"description"`
	VideoURL        string     `yaml:"video_url,omitempty" json:"videoUrl,omitempty"`
	MaterialURL     string     `yaml:"material_url,omitempty" json:"materialUrl,omitempty"`
	Tasks           []Task     `yaml:"tasks" json:"tasks"`
	TotalReward     int        `yaml:"total_reward" json:"totalReward"`
	UnlockType      UnlockType `yaml:"unlock_type" json:"unlockType"`
	UnlockDate      string     `yaml:"unlock_date,omitempty" json:"unlockDate,omitempty"` // RFC 3339
	RequiredLessons []int      `yaml:"required_lessons,omitempty" json:"requiredLessons,omitempty"`
}

// Task represents one task within a lesson.
type Task struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Type     TaskType `yaml:"type" json:"type"`
	URL      string   `yaml:"url,omitempty" json:"url,omitempty"`
	Reward   int      `yaml:"reward" json:"reward"` // candies, granted on first pass only
	MaxScore int      `yaml:"max_score" json:"maxScore"`
}

// MistakeCategory groups mistakes in the OGE error taxonomy.
type MistakeCategory string

const (
	MistakeOrthography MistakeCategory = "ORTH"
	MistakePunctuation MistakeCategory = "PUNCT"
	MistakeGrammar     MistakeCategory = "GRAM"
	MistakeSpeech      MistakeCategory = "SPEECH"
	MistakeText        MistakeCategory = "TEXT"
)

// Mistake is one entry of the mistake dictionary used to annotate task attempts.
type Mistake struct {
	ID          string          `yaml:"id" json:"id"`
	Category    MistakeCategory `yaml:"category" json:"category"`
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Tags        []string        `yaml:"tags" json:"tags"`
}
