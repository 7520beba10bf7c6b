package session

// Keys builds the Redis key names used by goSession under an optional prefix.
//
//	{prefix}session:refresh:{jti}               -> userId:deviceId:clientType
//	{prefix}session:consumed:{jti}              -> tombstone of a consumed refresh record
//	{prefix}session:active:{userId}             -> refresh jti of the live user session
//	{prefix}session:device:{userId}:{deviceId}  -> refresh jti of the live device session
//	{prefix}blacklist:{jti}                     -> "1"
type Keys struct {
	prefix string
}

// NewKeys returns a key builder. An empty prefix yields the bare key scheme.
func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

// Prefix returns the namespace prepended to every key.
func (k Keys) Prefix() string { return k.prefix }

func (k Keys) Refresh(jti string) string {
	return k.prefix + "session:refresh:" + jti
}

// RefreshPrefix is the key prefix Lua scripts concatenate a jti onto.
func (k Keys) RefreshPrefix() string {
	return k.prefix + "session:refresh:"
}

func (k Keys) Consumed(jti string) string {
	return k.prefix + "session:consumed:" + jti
}

func (k Keys) Active(userID string) string {
	return k.prefix + "session:active:" + userID
}

func (k Keys) Device(userID, deviceID string) string {
	return k.prefix + "session:device:" + userID + ":" + deviceID
}

func (k Keys) Blacklist(jti string) string {
	return k.prefix + "blacklist:" + jti
}
