package ref

// Symbol is an interned name. It encodes as SYMBOL:<name>, keeping every
// character of the name, while a plain string passes through untagged.
type Symbol string

func (s Symbol) String() string { return string(s) }
