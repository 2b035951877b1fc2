// Package config models the daemon's recognized settings as a plain Go
// struct. The file-reading/parsing step ("a plain key/value map is
// injected into the engine") is externalized: that loader is the named external
// collaborator and lives outside this package. What's built here is the
// shape Load's result takes and the defaulting/normalization a loader
// would apply to it, mirroring the structure (and the
// DefaultConfig()-then-override idiom) of momoshtrem's own config
// package with the YAML/file I/O stripped out.
package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RetronetBR/torrentfs/internal/prefetch"
)

// Config is the daemon's effective configuration, covering the
// recognized-keys list.
type Config struct {
	MaxMetadataMB       int                 `json:"max_metadata_mb"`
	SkipCheck           bool                `json:"skip_check"`
	CheckingMaxActive   int                 `json:"checking_max_active"`    // 0 = unlimited
	ResumeSaveIntervalS int                 `json:"resume_save_interval_s"` // 0 = disabled
	TrackerAliases      map[string][]string `json:"tracker_aliases"`
	Prefetch            prefetch.Config     `json:"prefetch"`
}

// DefaultConfig returns the daemon's built-in defaults, applied before
// any injected map is overlaid.
func DefaultConfig() Config {
	return Config{
		MaxMetadataMB:       64,
		SkipCheck:           false,
		CheckingMaxActive:   0,
		ResumeSaveIntervalS: 30,
		TrackerAliases:      make(map[string][]string),
		Prefetch:            prefetch.DefaultConfig(),
	}
}

// FromMap overlays recognized keys from m onto DefaultConfig(), the way
// a loader that has already parsed a JSON document would hand its
// decoded map to the engine. Unknown keys are ignored with a warning
// logged through log rather than a hard failure.
func FromMap(m map[string]any, log zerolog.Logger) (Config, error) {
	cfg := DefaultConfig()

	for key, raw := range m {
		switch key {
		case "max_metadata_mb":
			n, err := intVal(key, raw)
			if err != nil {
				return Config{}, err
			}
			cfg.MaxMetadataMB = n
		case "skip_check":
			b, ok := raw.(bool)
			if !ok {
				return Config{}, fmt.Errorf("config: %s must be a bool", key)
			}
			cfg.SkipCheck = b
		case "checking.max_active":
			n, err := intVal(key, raw)
			if err != nil {
				return Config{}, err
			}
			cfg.CheckingMaxActive = n
		case "resume.save_interval_s":
			n, err := intVal(key, raw)
			if err != nil {
				return Config{}, err
			}
			cfg.ResumeSaveIntervalS = n
		case "trackers.aliases":
			aliases, err := aliasMap(raw)
			if err != nil {
				return Config{}, err
			}
			cfg.TrackerAliases = aliases
		default:
			if strings.HasPrefix(key, "prefetch.") {
				if err := applyPrefetchKey(&cfg.Prefetch, strings.TrimPrefix(key, "prefetch."), raw); err != nil {
					return Config{}, err
				}
				continue
			}
			log.Warn().Str("key", key).Msg("config: ignoring unrecognized key")
		}
	}

	return cfg, nil
}

func intVal(key string, raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("config: %s must be a number", key)
	}
}

func floatVal(key string, raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("config: %s must be a number", key)
	}
}

func aliasMap(raw any) (map[string][]string, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config: trackers.aliases must be an object")
	}
	out := make(map[string][]string, len(m))
	for name, v := range m {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("config: trackers.aliases.%s must be an array", name)
		}
		urls := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("config: trackers.aliases.%s entries must be strings", name)
			}
			urls = append(urls, s)
		}
		out[name] = urls
	}
	return out, nil
}

// applyPrefetchKey handles the `prefetch.*` namespace, mapped onto
// prefetch.Config's fields.
func applyPrefetchKey(pc *prefetch.Config, key string, raw any) error {
	switch key {
	case "mode":
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("config: prefetch.mode must be a string")
		}
		pc.Mode = s
	case "on_start":
		b, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("config: prefetch.on_start must be a bool")
		}
		pc.OnStart = b
	case "max_mb":
		n, err := floatVal("prefetch.max_mb", raw)
		if err != nil {
			return err
		}
		pc.MaxBytes = int64(n * 1024 * 1024)
	case "max_files":
		n, err := intVal("prefetch.max_files", raw)
		if err != nil {
			return err
		}
		pc.MaxFiles = n
	case "max_dirs":
		n, err := intVal("prefetch.max_dirs", raw)
		if err != nil {
			return err
		}
		pc.MaxDirs = n
	case "batch_size":
		n, err := intVal("prefetch.batch_size", raw)
		if err != nil {
			return err
		}
		pc.BatchSize = n
	case "batch_sleep_ms":
		n, err := intVal("prefetch.batch_sleep_ms", raw)
		if err != nil {
			return err
		}
		pc.BatchSleepMS = n
	case "scan_sleep_ms":
		n, err := intVal("prefetch.scan_sleep_ms", raw)
		if err != nil {
			return err
		}
		pc.ScanSleepMS = n
	case "sleep_ms":
		n, err := intVal("prefetch.sleep_ms", raw)
		if err != nil {
			return err
		}
		pc.SleepMS = n
	case "media.extensions":
		list, ok := raw.([]any)
		if !ok {
			return fmt.Errorf("config: prefetch.media.extensions must be an array")
		}
		exts := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("config: prefetch.media.extensions entries must be strings")
			}
			exts = append(exts, s)
		}
		pc.MediaExtensions = exts
	default:
		if strings.HasPrefix(key, "media.") {
			return applyProfileKey(&pc.MediaHead, &pc.MediaTail, "prefetch."+key, strings.TrimPrefix(key, "media."), raw)
		}
		if strings.HasPrefix(key, "other.") {
			return applyProfileKey(&pc.OtherHead, &pc.OtherTail, "prefetch."+key, strings.TrimPrefix(key, "other."), raw)
		}
		// Unrecognized prefetch.* sub-keys fall through silently rather
		// than erroring: the namespace grows with the prefetch policy.
	}
	return nil
}

// applyProfileKey handles the per-profile start_*/end_* clamp overrides
// (`prefetch.media.start_pct`, `prefetch.other.end_max_mb`, ...), mapping
// start_* onto the head profile and end_* onto the tail profile.
func applyProfileKey(head, tail *prefetch.Profile, fullKey, key string, raw any) error {
	n, err := floatVal(fullKey, raw)
	if err != nil {
		return err
	}
	switch key {
	case "start_pct":
		head.Pct = n
	case "start_min_mb":
		head.MinMB = n
	case "start_max_mb":
		head.MaxMB = n
	case "end_pct":
		tail.Pct = n
	case "end_min_mb":
		tail.MinMB = n
	case "end_max_mb":
		tail.MaxMB = n
	}
	return nil
}
