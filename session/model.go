package session

const (
	// DefaultExpirationSeconds is the idle lifetime of a session.
	DefaultExpirationSeconds int64 = 86400
	// DefaultCSRFExpirationSeconds is the lifetime of an issued CSRF token.
	DefaultCSRFExpirationSeconds int64 = 3600
	// DefaultCookieName is the cookie name carried by sessions when none is configured.
	DefaultCookieName = "PHPSESSID"
	// DefaultTable is the logical durable table holding session records.
	DefaultTable = "sessions"
)

// CookieOptions carries the cookie attributes an HTTP layer applies when emitting the
// session cookie. The store never reads them.
type CookieOptions struct {
	Name     string
	HTTPOnly bool
	Secure   bool
	Path     string
	Domain   string
}

// DefaultCookieOptions returns the cookie attributes used when none are configured.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Name:     DefaultCookieName,
		HTTPOnly: true,
		Secure:   false,
		Path:     "/",
	}
}

// Location reports where a session id currently resides.
type Location uint8

const (
	// LocationAbsent means neither tier holds the id.
	LocationAbsent Location = iota
	// LocationCache means the cache tier holds the id.
	LocationCache
	// LocationDurable means only the durable tier holds the id.
	LocationDurable
)

func (l Location) String() string {
	switch l {
	case LocationCache:
		return "cache"
	case LocationDurable:
		return "durable"
	default:
		return "absent"
	}
}

// Record is the stored shape of a session in either tier.
type Record struct {
	ID        string
	Data      map[string]any
	Timestamp int64
}

// Session is a view of one stored session. It is not safe for concurrent mutation;
// each request is expected to own its Session value.
type Session struct {
	id        string
	data      map[string]any
	timestamp int64

	expirationSeconds     int64
	csrfExpirationSeconds int64
	cookie                CookieOptions

	// persisted is true when the store knows a durable row exists for id.
	persisted bool
}

// ID returns the session id, or "" when the session is unattached.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Attached reports whether the session carries an id.
func (s *Session) Attached() bool {
	return s != nil && s.id != ""
}

// Timestamp returns the Unix time of the last touch.
func (s *Session) Timestamp() int64 {
	if s == nil {
		return 0
	}
	return s.timestamp
}

// ExpirationSeconds returns the idle lifetime applied to this session.
func (s *Session) ExpirationSeconds() int64 {
	if s == nil {
		return 0
	}
	return s.expirationSeconds
}

// CSRFExpirationSeconds returns the lifetime applied to CSRF tokens issued on this session.
func (s *Session) CSRFExpirationSeconds() int64 {
	if s == nil {
		return 0
	}
	return s.csrfExpirationSeconds
}

// Cookie returns the cookie attributes carried by the session.
func (s *Session) Cookie() CookieOptions {
	if s == nil {
		return CookieOptions{}
	}
	return s.cookie
}

// Data returns a deep copy of the session data.
func (s *Session) Data() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return cloneMap(s.data)
}

// Empty reports whether the session holds no data.
func (s *Session) Empty() bool {
	return s == nil || len(s.data) == 0
}

// Get returns a deep copy of the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Has reports whether key is present in the session data.
func (s *Session) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.data[key]
	return ok
}

func (s *Session) record() Record {
	return Record{ID: s.id, Data: s.data, Timestamp: s.timestamp}
}

// touch stamps now without moving the timestamp backwards.
func (s *Session) touch(now int64) {
	if now > s.timestamp {
		s.timestamp = now
	}
}

func (s *Session) detach() {
	s.id = ""
	s.data = map[string]any{}
	s.persisted = false
}
