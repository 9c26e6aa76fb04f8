package ref

// DisplayName labels a call on ref for logs and traces without any lookup:
// Name.method for types, Name#method for records, Symbol#method for
// symbols and Unknown#method otherwise.
func DisplayName(ref, method string) string {
	return displayName(defaultParser, ref, method)
}

func displayName(p *parser, s, method string) string {
	r, ok := p.parse(s)
	if !ok {
		return "Unknown#" + method
	}
	switch {
	case r.Tag == TagClass:
		return r.TypeName + "." + method
	case r.IsStore():
		return r.TypeName + "#" + method
	case r.Tag == TagSymbol:
		return "Symbol#" + method
	default:
		return "Unknown#" + method
	}
}
