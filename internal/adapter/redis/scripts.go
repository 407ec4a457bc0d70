package redis

import goredis "github.com/redis/go-redis/v9"

// fixedWindowScript counts one event against a fixed window. The first event of a window creates
// the key with a TTL of the window length; the key expiring is the window reset.
// KEYS: [1]=bucket key. ARGV: [1]=max events, [2]=window in milliseconds.
// Returns 1 when allowed, 0 when denied.
var fixedWindowScript = goredis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]))
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
  return 1
end
if current >= tonumber(ARGV[1]) then
  return 0
end
redis.call('INCR', KEYS[1])
return 1
`)
