package auth

// Known OAuth scopes used by the challenge service.
const (
	ScopeChallengesRead  = "challenges:read"
	ScopeChallengesWrite = "challenges:write"
	ScopeSync            = "challenges:sync"
)
