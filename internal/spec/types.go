package spec

import "time"

// Experiment is the on-disk description of one A/B test.
type Experiment struct {
	Version  int             `yaml:"version"`
	Test     TestConfig      `yaml:"test"`
	Provider ProviderConfig  `yaml:"provider"`
	Pricing  PricingConfig   `yaml:"pricing"`
	Variants []VariantConfig `yaml:"variants"`
	Inputs   []InputConfig   `yaml:"inputs"`
	Config   RunConfig       `yaml:"config"`
	Notify   NotifyConfig    `yaml:"notify"`
}

type TestConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type ProviderConfig struct {
	Default         string        `yaml:"default"`
	Workers         int           `yaml:"workers"`
	DispatchSpacing time.Duration `yaml:"dispatch_spacing"`
}

type PricingConfig struct {
	Models  map[string]PriceConfig `yaml:"models"`
	Aliases map[string]string      `yaml:"aliases"`
}

type PriceConfig struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

type VariantConfig struct {
	ID        string           `yaml:"id"`
	Name      string           `yaml:"name"`
	Version   int              `yaml:"version"`
	Template  string           `yaml:"template"`
	Variables []VariableConfig `yaml:"variables"`
	Provider  string           `yaml:"provider"`
	Model     string           `yaml:"model"`
	Params    ParamsConfig     `yaml:"params"`
	Tags      []string         `yaml:"tags"`
	ParentID  string           `yaml:"parent_id"`
}

type VariableConfig struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
	Default  string `yaml:"default"`
}

type ParamsConfig struct {
	Temperature      *float64 `yaml:"temperature"`
	MaxTokens        int      `yaml:"max_tokens"`
	TopP             *float64 `yaml:"top_p"`
	FrequencyPenalty *float64 `yaml:"frequency_penalty"`
	PresencePenalty  *float64 `yaml:"presence_penalty"`
}

type InputConfig struct {
	ID             string            `yaml:"id"`
	Prompt         string            `yaml:"prompt"`
	Variables      map[string]string `yaml:"variables"`
	ExpectedOutput string            `yaml:"expected_output"`
	Category       string            `yaml:"category"`
}

type RunConfig struct {
	MinSampleSize      int           `yaml:"min_sample_size"`
	MaxSampleSize      int           `yaml:"max_sample_size"`
	ConfidenceLevel    float64       `yaml:"confidence_level"`
	TrafficSplit       []float64     `yaml:"traffic_split"`
	MaxDuration        time.Duration `yaml:"max_duration"`
	StopOnSignificance bool          `yaml:"stop_on_significance"`
	PrimaryMetric      string        `yaml:"primary_metric"`
}

type NotifyConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}
