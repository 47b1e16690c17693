package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/llm"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Settings is the resolved service configuration.
type Settings struct {
	Addr      string
	LogFormat string
	LogLevel  string

	Session SessionSettings

	// Pacing enables the reveal pauses on streamed HTTP responses.
	Pacing bool

	Presets       map[string]llm.ProviderConfig
	DefaultPreset string
	RawHostMatch  string
}

// SessionSettings configures the canvas session store.
type SessionSettings struct {
	Backend       string
	TTL           time.Duration
	MaxBytes      int
	Dir           string
	SQLitePath    string
	RedisAddr     string
	SweepInterval time.Duration
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		Addr:      ":8080",
		LogFormat: "json",
		LogLevel:  "info",
		Session: SessionSettings{
			Backend:       BackendMemory,
			TTL:           60 * time.Minute,
			MaxBytes:      5 << 20,
			Dir:           "sessions",
			SQLitePath:    "sessions.db",
			RedisAddr:     "localhost:6379",
			SweepInterval: 5 * time.Minute,
		},
		Pacing:       true,
		Presets:      map[string]llm.ProviderConfig{},
		RawHostMatch: llm.DefaultRawHostMatch,
	}
}

// Load resolves settings from defaults, then the file at path (if any),
// then the process environment.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		doc, err := ReadFile(path)
		if err != nil {
			return Settings{}, err
		}
		if err := s.Apply(doc); err != nil {
			return Settings{}, err
		}
	}
	s.ApplyEnv(os.Getenv)
	return s, s.Validate()
}

// Apply overlays values present in doc.
//
//	addr: ":8080"
//	log: {format: text, level: debug}
//	session: {backend: sqlite, ttl: 30m, max_bytes: 1048576, dir: ..., sqlite_path: ..., redis_addr: ..., sweep_interval: 1m}
//	stream: {pacing: false}
//	default_preset: fast
//	raw_host_match: anthropic
//	presets:
//	  fast: {kind: gemini, api_key: ..., model: gemini-2.0-flash, timeout: 60s, max_retries: 1}
func (s *Settings) Apply(doc Document) error {
	s.Addr = doc.String("addr", s.Addr)

	logCfg := doc.Section("log")
	s.LogFormat = logCfg.String("format", s.LogFormat)
	s.LogLevel = logCfg.String("level", s.LogLevel)

	sess := doc.Section("session")
	s.Session.Backend = sess.String("backend", s.Session.Backend)
	s.Session.TTL = sess.Duration("ttl", s.Session.TTL)
	s.Session.MaxBytes = sess.Int("max_bytes", s.Session.MaxBytes)
	s.Session.Dir = sess.String("dir", s.Session.Dir)
	s.Session.SQLitePath = sess.String("sqlite_path", s.Session.SQLitePath)
	s.Session.RedisAddr = sess.String("redis_addr", s.Session.RedisAddr)
	s.Session.SweepInterval = sess.Duration("sweep_interval", s.Session.SweepInterval)

	s.Pacing = doc.Section("stream").Bool("pacing", s.Pacing)
	s.DefaultPreset = doc.String("default_preset", s.DefaultPreset)
	s.RawHostMatch = doc.String("raw_host_match", s.RawHostMatch)

	presets := doc.Section("presets")
	for _, name := range presets.Keys() {
		p := presets.Section(name)
		pc := llm.ProviderConfig{
			Kind:         llm.Kind(p.String("kind", "")),
			APIKey:       p.String("api_key", ""),
			BaseURL:      p.String("base_url", ""),
			Model:        p.String("model", ""),
			Timeout:      p.Duration("timeout", 0),
			RawHostMatch: p.String("raw_host_match", ""),
		}
		if p.Has("max_retries") {
			n := p.Int("max_retries", 0)
			pc.MaxRetries = &n
		}
		if !pc.Kind.Valid() {
			return &dferrors.ConfigError{Field: "presets." + name + ".kind", Message: fmt.Sprintf("unknown provider %q", pc.Kind)}
		}
		s.Presets[name] = pc
	}
	return nil
}

// envFamilies maps provider families to their API key variables.
var envFamilies = []struct {
	kind llm.Kind
	key  string
}{
	{llm.KindGemini, "GEMINI_API_KEY"},
	{llm.KindOpenAI, "OPENAI_API_KEY"},
	{llm.KindAnthropic, "ANTHROPIC_API_KEY"},
	{llm.KindCustom, "CUSTOM_API_KEY"},
}

// ApplyEnv overlays environment variables read through getenv.
//
// A family API key fills the key of every preset of that family that has
// none, and creates a preset named after the family if none exists.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("DIAGRAMFLOW_ADDR", &s.Addr)
	str("DIAGRAMFLOW_LOG_FORMAT", &s.LogFormat)
	str("DIAGRAMFLOW_LOG_LEVEL", &s.LogLevel)
	str("DIAGRAMFLOW_SESSION_BACKEND", &s.Session.Backend)
	str("DIAGRAMFLOW_SESSION_DIR", &s.Session.Dir)
	str("DIAGRAMFLOW_SQLITE_PATH", &s.Session.SQLitePath)
	str("DIAGRAMFLOW_REDIS_ADDR", &s.Session.RedisAddr)
	str("DIAGRAMFLOW_DEFAULT_PRESET", &s.DefaultPreset)
	str("DIAGRAMFLOW_RAW_HOST_MATCH", &s.RawHostMatch)

	if v := getenv("DIAGRAMFLOW_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.Session.TTL = d
		}
	}
	if v := getenv("DIAGRAMFLOW_STREAM_PACING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Pacing = b
		}
	}

	customURL := strings.TrimSpace(getenv("CUSTOM_BASE_URL"))
	for _, fam := range envFamilies {
		key := strings.TrimSpace(getenv(fam.key))
		if key == "" {
			continue
		}
		if fam.kind == llm.KindCustom && customURL == "" {
			continue
		}

		found := false
		for name, pc := range s.Presets {
			if pc.Kind != fam.kind {
				continue
			}
			found = true
			if pc.APIKey == "" {
				pc.APIKey = key
			}
			if fam.kind == llm.KindCustom && pc.BaseURL == "" {
				pc.BaseURL = customURL
			}
			s.Presets[name] = pc
		}
		if !found {
			pc := llm.ProviderConfig{Kind: fam.kind, APIKey: key}
			if fam.kind == llm.KindCustom {
				pc.BaseURL = customURL
			}
			s.Presets[string(fam.kind)] = pc
		}
	}
}

// Validate checks the settings for consistency. Presets are checked with
// llm.ProviderConfig.Validate; a service with no presets is valid and
// relies on per-request provider overrides.
func (s Settings) Validate() error {
	switch s.Session.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendRedis:
	default:
		return &dferrors.ConfigError{Field: "session.backend", Message: fmt.Sprintf("unknown backend %q", s.Session.Backend)}
	}
	if s.Session.TTL <= 0 {
		return &dferrors.ConfigError{Field: "session.ttl", Message: "must be positive"}
	}
	if s.Session.MaxBytes <= 0 {
		return &dferrors.ConfigError{Field: "session.max_bytes", Message: "must be positive"}
	}
	for _, name := range s.PresetNames() {
		if err := s.Presets[name].Validate(); err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}
	}
	if s.DefaultPreset != "" {
		if _, ok := s.Presets[s.DefaultPreset]; !ok {
			return &dferrors.ConfigError{Field: "default_preset", Message: fmt.Sprintf("unknown preset %q", s.DefaultPreset)}
		}
	}
	return nil
}

// PresetNames returns preset names in sorted order.
func (s Settings) PresetNames() []string {
	names := make([]string, 0, len(s.Presets))
	for name := range s.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildPresets registers every preset in a new llm.Presets. The default is
// DefaultPreset when set, otherwise the first family in gemini, openai,
// anthropic, custom order that has a preset, otherwise the first name.
func (s Settings) BuildPresets(opts ...llm.Option) (*llm.Presets, error) {
	p := llm.NewPresets(opts...)
	names := s.PresetNames()
	for _, name := range names {
		pc := s.Presets[name]
		if pc.RawHostMatch == "" {
			pc.RawHostMatch = s.RawHostMatch
		}
		p.Register(name, pc)
	}
	if len(names) == 0 {
		return p, nil
	}

	def := s.DefaultPreset
	if def == "" {
		for _, fam := range envFamilies {
			if _, ok := s.Presets[string(fam.kind)]; ok {
				def = string(fam.kind)
				break
			}
		}
	}
	if def == "" {
		def = names[0]
	}
	if err := p.SetDefault(def); err != nil {
		return nil, err
	}
	return p, nil
}
