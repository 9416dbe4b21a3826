package auth

// Source distinguishes which of the control-plane's two accepted
// credentials authenticated a Principal.
type Source string

const (
	SourceBearer      Source = "bearer"
	SourceDeviceToken Source = "device_token"
)

// Principal is the authenticated identity the edge's requireAuth
// middleware attaches to a request's context: the actor id used for
// audit logging (room created/deleted) plus which credential kind
// produced it, so a handler can tell a storage-registered device
// apart from an externally-issued user identity without re-deriving it.
type Principal struct {
	ID     string
	Source Source
}

// NewPrincipal constructs a Principal for the given id and credential source.
func NewPrincipal(id string, source Source) *Principal {
	return &Principal{ID: id, Source: source}
}
