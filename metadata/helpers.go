package metadata

import "fmt"

// fromFile returns a *Metadata[T] loaded from the named file, verifying
// that its declared type matches T.
func fromFile[T Roles](name string) (*Metadata[T], error) {
	meta := &Metadata[T]{}
	if _, err := meta.FromFile(name); err != nil {
		return nil, fmt.Errorf("error loading metadata from file %s: %w", name, err)
	}
	return meta, nil
}

// MetaFileName returns the on-disk/on-wire file name for a top-level role,
// e.g. MetaFileName(ROOT) == "root.json".
func MetaFileName(role string) string {
	if role == ROOT {
		return "root.json"
	}
	return role + ".json"
}

// VersionedName prefixes name with version, producing the file name used
// when a role is served under a version-qualified path.
func VersionedName(version int64, name string) string {
	return fmt.Sprintf("%d.%s", version, name)
}
