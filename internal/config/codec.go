package config

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rubidium-run/rubidium/internal/corerr"
)

// decodeProperties parses a Java-Properties-style key=value file: one
// entry per line, blank lines and lines starting with "#" or "!"
// ignored, no value interpolation or escaping beyond what appears
// literally. Grounded on AbstractConfig's Properties-backed load().
func decodeProperties(r *bufio.Scanner) map[string]string {
	kv := make(map[string]string)
	for r.Scan() {
		line := strings.TrimSpace(r.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		kv[key] = value
	}
	return kv
}

// encodeProperties serializes kv as key=value lines, sorted by key for a
// stable, diff-friendly on-disk representation.
func encodeProperties(w *bufio.Writer, kv map[string]string, header string) error {
	if header != "" {
		if _, err := fmt.Fprintf(w, "# %s\n", header); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, kv[k]); err != nil {
			return err
		}
	}
	return w.Flush()
}

const schemaVersionKey = "_schema_version"

// defaultSchemaVersion is BaseConfig's SchemaVersion, so a config that
// never overrides it round-trips without an on-disk version key.
const defaultSchemaVersion = 1

// loadTyped reads path, resolves schema migration if needed, and Loads
// the result into a fresh instance from factory.
func loadTyped(path string, factory func() TypedConfig) (TypedConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, corerr.ConfigurationError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	kv := decodeProperties(bufio.NewScanner(f))

	instance := factory()

	oldVersion := defaultSchemaVersion
	if v, ok := kv[schemaVersionKey]; ok {
		fmt.Sscanf(v, "%d", &oldVersion)
	}
	delete(kv, schemaVersionKey)

	if m, ok := instance.(Migratable); ok {
		if cur := m.SchemaVersion(); cur != oldVersion {
			migrated, merr := m.Migrate(oldVersion, kv)
			if merr != nil {
				return nil, corerr.ValidationError(path, []string{fmt.Sprintf("migration from schema %d to %d failed: %v", oldVersion, cur, merr)})
			}
			kv = migrated
		}
	}

	if err := instance.Load(kv); err != nil {
		return nil, corerr.ConfigurationError(fmt.Sprintf("failed to load %s", path), err)
	}
	return instance, nil
}

// saveTyped serializes value's current state to path, tagging it with
// its schema version when that differs from defaultSchemaVersion, so a
// later load can detect and migrate forward.
func saveTyped(path string, value TypedConfig) error {
	kv := make(map[string]string)
	value.Save(kv)

	if m, ok := value.(Migratable); ok {
		if v := m.SchemaVersion(); v != defaultSchemaVersion {
			kv[schemaVersionKey] = fmt.Sprintf("%d", v)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return corerr.ConfigurationError(fmt.Sprintf("failed to create %s", path), err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := encodeProperties(w, kv, "generated by the rubidium config store"); err != nil {
		return corerr.ConfigurationError(fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}
