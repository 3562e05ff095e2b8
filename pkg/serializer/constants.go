package serializer

// StdoutURI is the special output path indicating stdout.
const StdoutURI = "-"
