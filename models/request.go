package models

// ResolveRequest carries the query parameters of the resolve endpoints.
// ID is not marked required: a missing id reaches the resolver, which
// answers BadRequest like any other outcome.
type ResolveRequest struct {
	// ID is the channel handle, with or without a leading @.
	ID string `form:"id"`

	// Format selects the success response: "redirect" (default) answers with
	// a 302 to the manifest, "json" returns a ResolveResponse.
	Format string `form:"format" binding:"omitempty,oneof=redirect json"`
}

// Defaults applies default values to unset fields.
func (r *ResolveRequest) Defaults() {
	if r.Format == "" {
		r.Format = "redirect"
	}
}
