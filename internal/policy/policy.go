// Package policy loads the "external policy data" spec.md section 6
// describes: the set of OS/microcode symbols the core must never emit a
// body for, the set of libc-colliding symbols that must be renamed on
// emission, and the map of zero-sized symbols whose true size must be
// recovered by name.
//
// This data is handed to the core from outside it; in this module it lives
// on disk as a small config file loaded with viper, the way the pack's
// config-heavy repos (rcornwell/S370, Manu343726/cucaracha) load theirs.
package policy

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the fully-resolved policy handed to the Context Builder.
type Config struct {
	// Ignored lists symbol names for which no body is emitted; the core
	// expects a hand-written "<name>_recomp" stub to exist at link time.
	Ignored []string `mapstructure:"ignored"`

	// Renamed lists symbol names that collide with host libc and must be
	// emitted with a leading underscore.
	Renamed []string `mapstructure:"renamed"`

	// UnsizedSizes maps a symbol name to the byte size the ELF loader
	// failed to record (size == 0), e.g. "sqrtf" -> 0x38.
	UnsizedSizes map[string]uint32 `mapstructure:"unsized_sizes"`
}

// Sets is the resolved, query-optimized form of Config used by the
// Context Builder; building it once avoids repeated slice scans per symbol.
type Sets struct {
	ignored      map[string]struct{}
	renamed      map[string]struct{}
	unsizedSizes map[string]uint32
}

// IsIgnored reports whether name is in the ignored-name set.
func (s *Sets) IsIgnored(name string) bool {
	_, ok := s.ignored[name]
	return ok
}

// IsRenamed reports whether name is in the renamed-name set.
func (s *Sets) IsRenamed(name string) bool {
	_, ok := s.renamed[name]
	return ok
}

// UnsizedLookup returns the recovered size for name, if policy knows one.
func (s *Sets) UnsizedLookup(name string) (uint32, bool) {
	size, ok := s.unsizedSizes[name]
	return size, ok
}

// Resolve builds a Sets from a Config.
func (c Config) Resolve() *Sets {
	s := &Sets{
		ignored:      make(map[string]struct{}, len(c.Ignored)),
		renamed:      make(map[string]struct{}, len(c.Renamed)),
		unsizedSizes: make(map[string]uint32, len(c.UnsizedSizes)),
	}
	for _, name := range c.Ignored {
		s.ignored[name] = struct{}{}
	}
	for _, name := range c.Renamed {
		s.renamed[name] = struct{}{}
	}
	for name, size := range c.UnsizedSizes {
		s.unsizedSizes[name] = size
	}
	return s
}

// Default returns the built-in policy used when no policy file is given:
// the well-known N64 libultra OS entry points are ignored, the common
// libc symbols known to collide with a host toolchain are renamed, and
// sqrtf (whose ELF size is famously emitted as 0 by some N64 SDKs) has
// its size recovered.
func Default() Config {
	return Config{
		Ignored: []string{
			"osSendMesg",
			"osRecvMesg",
			"osCreateMesgQueue",
			"osSetEventMesg",
			"osViSetEvent",
			"osViBlack",
			"osViSwapBuffer",
			"osViSetMode",
			"osViSetSpecialFeatures",
			"osAiSetFrequency",
			"osEPiStartDma",
			"osInvalDCache",
			"osInvalICache",
			"osWritebackDCache",
			"osWritebackDCacheAll",
			"__osDisableInt",
			"__osRestoreInt",
			"__osSpSetPc",
			"__osSiRawStartDma",
		},
		Renamed: []string{
			"memcpy",
			"memset",
			"memmove",
			"strcpy",
			"strncpy",
			"strlen",
			"strcmp",
			"strncmp",
			"strcat",
			"malloc",
			"free",
			"rand",
			"srand",
			"printf",
			"sprintf",
		},
		UnsizedSizes: map[string]uint32{
			"sqrtf": 0x38,
		},
	}
}

// Load reads a policy file at path (YAML, TOML, or JSON; format is
// inferred from the extension by viper) and merges it over Default() key by
// key: each of ignored, renamed and unsized_sizes that the file sets
// replaces the default value for that key wholesale, and keys the file
// omits keep their defaults. An empty path returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrapf(err, "loading policy file %q", path)
	}

	if v.IsSet("ignored") {
		cfg.Ignored = v.GetStringSlice("ignored")
	}
	if v.IsSet("renamed") {
		cfg.Renamed = v.GetStringSlice("renamed")
	}
	if v.IsSet("unsized_sizes") {
		raw := v.GetStringMap("unsized_sizes")
		merged := make(map[string]uint32, len(raw))
		for name, val := range raw {
			switch n := val.(type) {
			case int:
				merged[name] = uint32(n)
			case int64:
				merged[name] = uint32(n)
			case float64:
				merged[name] = uint32(n)
			default:
				return Config{}, errors.Errorf("unsized_sizes[%q]: expected integer, got %T", name, val)
			}
		}
		cfg.UnsizedSizes = merged
	}

	return cfg, nil
}
