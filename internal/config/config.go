package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/gyeh/welfarebill/internal/decode"
	"github.com/gyeh/welfarebill/internal/eligibility"
	"github.com/gyeh/welfarebill/internal/normalize"
)

// ErrInvalid marks configuration problems that block rendering.
var ErrInvalid = errors.New("invalid configuration")

// Dedup key scopes.
const (
	ScopeMonth = "month" // one key set per "<YYYY/MM>_batch1"
	ScopeFlat  = "flat"  // one shared "processed-keys" set
)

const (
	DefaultStore         = "file:welfarebill-store.json"
	DefaultDedupCapacity = 1000
	DefaultArchiveLimit  = 50
	DefaultPharmacyLabel = "薬局"
)

var medicalCodePattern = regexp.MustCompile(`^\d{10}$`)

// Config holds all runtime configuration for a welfarebill run.
// Command-line flags win over the YAML file, which wins over defaults.
type Config struct {
	Store      string
	ConfigPath string
	LogFormat  string // "text" or "json"
	LogLevel   string

	FilePath          string
	PreviousMonthFile string
	Batch             int
	TargetMonth       string // "YYYY/MM"; derived from the data when empty
	OutputDir         string
	TemplatePath      string
	SnapshotPath      string

	PharmacyName      string
	MedicalCode       string
	MunicipalityName  string
	InsurerNumbers    []string
	EncodingMode      string
	EligibilityPolicy string
	NameHash          string
	DedupScope        string
	DedupCapacity     int
	ArchiveLimit      int
}

// yamlConfig is the on-disk YAML structure.
type yamlConfig struct {
	Store        string `yaml:"store"`
	PharmacyName string `yaml:"pharmacy_name"`
	MedicalCode  string `yaml:"medical_code"`
	Municipality struct {
		Name           string   `yaml:"name"`
		InsurerNumbers []string `yaml:"insurer_numbers"`
	} `yaml:"municipality"`
	EncodingMode      string `yaml:"encoding_mode"`
	EligibilityPolicy string `yaml:"eligibility_policy"`
	NameHash          string `yaml:"name_hash"`
	DedupScope        string `yaml:"dedup_scope"`
	DedupCapacity     int    `yaml:"dedup_capacity"`
	ArchiveLimit      int    `yaml:"archive_limit"`
	TemplatePath      string `yaml:"template_path"`
	OutputDir         string `yaml:"output_dir"`
	LogLevel          string `yaml:"log_level"`
}

// LoadFromFile reads a YAML config file and fills the fields that are still
// unset.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	fill(&c.Store, yc.Store)
	fill(&c.PharmacyName, yc.PharmacyName)
	fill(&c.MedicalCode, yc.MedicalCode)
	fill(&c.MunicipalityName, yc.Municipality.Name)
	fill(&c.EncodingMode, yc.EncodingMode)
	fill(&c.EligibilityPolicy, yc.EligibilityPolicy)
	fill(&c.NameHash, yc.NameHash)
	fill(&c.DedupScope, yc.DedupScope)
	fill(&c.TemplatePath, yc.TemplatePath)
	fill(&c.OutputDir, yc.OutputDir)
	fill(&c.LogLevel, yc.LogLevel)
	if len(c.InsurerNumbers) == 0 {
		c.InsurerNumbers = yc.Municipality.InsurerNumbers
	}
	if c.DedupCapacity == 0 {
		c.DedupCapacity = yc.DedupCapacity
	}
	if c.ArchiveLimit == 0 {
		c.ArchiveLimit = yc.ArchiveLimit
	}
	return nil
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// ApplyDefaults fills whatever neither flags nor the file set.
func (c *Config) ApplyDefaults() {
	fill(&c.Store, DefaultStore)
	fill(&c.LogFormat, "text")
	fill(&c.LogLevel, "info")
	fill(&c.EncodingMode, string(decode.ModeANSIFirst))
	fill(&c.EligibilityPolicy, string(eligibility.PolicyMunicipality))
	fill(&c.NameHash, normalize.HashSHA256)
	fill(&c.DedupScope, ScopeMonth)
	fill(&c.OutputDir, ".")
	fill(&c.MunicipalityName, eligibility.DefaultMunicipality.Name)
	if len(c.InsurerNumbers) == 0 {
		c.InsurerNumbers = append([]string(nil), eligibility.DefaultMunicipality.InsurerNumbers...)
	}
	if c.Batch == 0 {
		c.Batch = 1
	}
	if c.DedupCapacity <= 0 {
		c.DedupCapacity = DefaultDedupCapacity
	}
	if c.ArchiveLimit <= 0 {
		c.ArchiveLimit = DefaultArchiveLimit
	}
}

// Municipality returns the eligibility target.
func (c *Config) Municipality() eligibility.Municipality {
	return eligibility.Municipality{Name: c.MunicipalityName, InsurerNumbers: c.InsurerNumbers}
}

// Validate checks the input file and the processing options.
func (c *Config) Validate() error {
	if c.FilePath == "" {
		return fmt.Errorf("--file is required")
	}
	if _, err := os.Stat(c.FilePath); err != nil {
		return fmt.Errorf("file not accessible: %w", err)
	}
	if c.PreviousMonthFile != "" {
		if _, err := os.Stat(c.PreviousMonthFile); err != nil {
			return fmt.Errorf("previous-month file not accessible: %w", err)
		}
	}
	return c.ValidateOptions()
}

// ValidateOptions checks enumerated options without touching the filesystem.
func (c *Config) ValidateOptions() error {
	if c.Batch != 1 && c.Batch != 2 {
		return fmt.Errorf("%w: batch must be 1 or 2, got %d", ErrInvalid, c.Batch)
	}
	if _, err := decode.ParseMode(c.EncodingMode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := eligibility.ParsePolicy(c.EligibilityPolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := normalize.HasherFor(c.NameHash); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.DedupScope != ScopeMonth && c.DedupScope != ScopeFlat {
		return fmt.Errorf("%w: dedup scope must be %q or %q, got %q", ErrInvalid, ScopeMonth, ScopeFlat, c.DedupScope)
	}
	if c.TargetMonth != "" && !targetMonthPattern.MatchString(c.TargetMonth) {
		return fmt.Errorf("%w: month must be YYYY/MM, got %q", ErrInvalid, c.TargetMonth)
	}
	return nil
}

var targetMonthPattern = regexp.MustCompile(`^\d{4}/(0[1-9]|1[0-2])$`)

// ValidateSettings checks the pharmacy settings the invoice needs. Rendering
// is refused when this fails.
func (c *Config) ValidateSettings() error {
	var errs []error
	if c.PharmacyName == "" {
		errs = append(errs, fmt.Errorf("%w: pharmacy name is required", ErrInvalid))
	}
	if c.MedicalCode == "" {
		errs = append(errs, fmt.Errorf("%w: medical institution code is required", ErrInvalid))
	} else if !medicalCodePattern.MatchString(c.MedicalCode) {
		errs = append(errs, fmt.Errorf("%w: medical institution code must be 10 digits, got %q", ErrInvalid, c.MedicalCode))
	}
	return errors.Join(errs...)
}
