package storekey

// Codec binds a namespace prefix and a data version so callers only supply
// the parts that vary. It is constructed once at startup and passed to the
// components that address the store.
type Codec struct {
	Prefix  string
	Version string
}

// NewCodec returns a Codec, substituting DefaultPrefix for an empty prefix.
func NewCodec(prefix, version string) *Codec {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Codec{Prefix: prefix, Version: version}
}

// PartitionPrefix returns the namespace of a single mode.
func (c *Codec) PartitionPrefix(mode string) string {
	return c.Prefix + "/" + mode
}

// CardKey addresses one record of a mode.
func (c *Codec) CardKey(mode, id string) (string, error) {
	return BuildKey(Spec{
		Prefix:     c.PartitionPrefix(mode),
		Version:    c.Version,
		Type:       TypeEnvFull,
		Identifier: id,
	})
}

// CardKeyPrefix returns the key prefix shared by every record of a mode,
// suitable for kv.Store.ListKeys.
func (c *Codec) CardKeyPrefix(mode string) string {
	return join(c.PartitionPrefix(mode), c.Version, TypeEnvFull, "")
}

// MetaKey addresses global meta data such as rules and history.
func (c *Codec) MetaKey(name string) (string, error) {
	return BuildMetaKey(c.Prefix, c.Version, name)
}

// ModeMetaKey addresses meta data that belongs to one mode.
func (c *Codec) ModeMetaKey(mode, name string) (string, error) {
	return BuildMetaKey(c.PartitionPrefix(mode), c.Version, name)
}

// IdentifierOf returns the decoded identifier of a record key and whether
// the key was a valid record key.
func IdentifierOf(key string) (string, bool) {
	p := ParseKey(key)
	if !p.Valid {
		return "", false
	}
	return p.Identifier, true
}
