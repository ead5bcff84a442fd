// Package filtergraph builds the -filter_complex graph for an encode job.
//
// A graph is an ordered list of fragments. Each fragment consumes labels that
// are either raw input stream specifiers ("0:v", "2:v") or outputs of an
// earlier fragment, and produces exactly one fresh label. The one produced
// label nobody consumes is the terminal label and becomes the -map target.
//
// Optional stages, in order:
//   - scale + overlay per enabled watermark (logo, then notice), chained
//   - ass subtitle burn-in
//
// Input indices are not decided here. The encoder package declares inputs
// and passes the resulting Inputs layout to Build.
package filtergraph
