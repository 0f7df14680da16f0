package factory

import "slices"

// Identity holds the attributes that identify a compiled artifact.
type Identity struct {
	Name      string   `json:"name"`
	SHAKey    string   `json:"sha_key"`
	DSPCode   string   `json:"dsp_code"`
	Libraries []string `json:"libraries"`
}

// Clone returns a deep copy. A nil library list becomes an empty one.
func (id Identity) Clone() Identity {
	out := id
	out.Libraries = cloneList(id.Libraries)
	return out
}

// Equal reports whether both records carry the same values, library order
// included.
func (id Identity) Equal(other Identity) bool {
	return id.Name == other.Name &&
		id.SHAKey == other.SHAKey &&
		id.DSPCode == other.DSPCode &&
		slices.Equal(id.Libraries, other.Libraries)
}

// IdentityOf snapshots the identity of any factory.
func IdentityOf(f Factory) Identity {
	return Identity{
		Name:      f.Name(),
		SHAKey:    f.SHAKey(),
		DSPCode:   f.DSPCode(),
		Libraries: cloneList(f.LibraryList()),
	}
}

func cloneList(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
