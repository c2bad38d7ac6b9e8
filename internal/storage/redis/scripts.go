package redis

const (
	// putDailyScript stores a per-day record unless the stored copy is newer.
	// Returns 1 when written, 0 when the incoming record was stale.
	putDailyScript = `
local record_key = KEYS[1]   -- {prefix}:user:{userID}:daily:{date}

local date = ARGV[1]
local screen_hours = ARGV[2]
local focus_hours = ARGV[3]
local sessions = ARGV[4]
local focus_sessions = ARGV[5]
local last_updated = tonumber(ARGV[6])
local ttl_seconds = tonumber(ARGV[7])

local existing = redis.call('HGET', record_key, 'last_updated')
if existing and tonumber(existing) > last_updated then
  return 0
end

redis.call('HSET', record_key,
  'date', date,
  'screen_time_hours', screen_hours,
  'focus_time_hours', focus_hours,
  'sessions', sessions,
  'focus_sessions', focus_sessions,
  'last_updated', ARGV[6]
)

if ttl_seconds > 0 then
  redis.call('EXPIRE', record_key, ttl_seconds)
end

return 1
`
)
