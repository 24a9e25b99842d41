package globals

// ContextKey is the type used for request-context values.
type ContextKey string

const UserIDKey ContextKey = "userId"
const RoleKey ContextKey = "role"
