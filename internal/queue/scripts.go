// Copyright 2025 James Ross
package queue

import "github.com/redis/go-redis/v9"

// The five atomic ops run server-side so that the 3-6 keys each touches
// (job list, ready set, active set, type registry, payload, counters) move
// together under one isolated execution. Scripts are compiled-in constants,
// not loaded from a path at startup, so the set of operations is fixed and
// known at build time.

const enqueueScriptSrc = `
local prefix = KEYS[1]
local qtype = KEYS[2]
local now = tonumber(ARGV[1])
local qid = ARGV[2]
local jid = ARGV[3]
local payload = ARGV[4]
local interval = tonumber(ARGV[5])

local job_list_key = prefix .. ':' .. qtype .. ':' .. qid
local payload_map_key = prefix .. ':payload'
local payload_field = qtype .. ':' .. qid .. ':' .. jid
local interval_map_key = prefix .. ':interval'
local interval_field = qtype .. ':' .. qid
local ready_set_key = prefix .. ':' .. qtype
local ready_type_registry = prefix .. ':ready:queue_type'

-- step 1: interval binding is set only if it does not already exist
redis.call('HSETNX', interval_map_key, interval_field, interval)

-- step 2: append job to the tail of the job list
redis.call('RPUSH', job_list_key, jid)

-- step 3: store payload
redis.call('HSET', payload_map_key, payload_field, payload)

-- step 4: insert Q into the ready set if absent, score = now
if redis.call('ZSCORE', ready_set_key, qid) == false then
	redis.call('ZADD', ready_set_key, now, qid)
end

-- step 5: ensure T is registered as a ready type
redis.call('SADD', ready_type_registry, qtype)

-- step 6: minute-bucket counters, retained >= 10 minutes
local minute = math.floor(now / 60000)
local global_key = prefix .. ':enqueue:' .. minute
local tenant_key = prefix .. ':' .. qtype .. ':' .. qid .. ':enqueue:' .. minute
redis.call('INCR', global_key)
redis.call('EXPIRE', global_key, 600)
redis.call('INCR', tenant_key)
redis.call('EXPIRE', tenant_key, 600)

return 1
`

const dequeueScriptSrc = `
local prefix = KEYS[1]
local qtype = KEYS[2]
local now = tonumber(ARGV[1])
local expire_ms = tonumber(ARGV[2])

local ready_set_key = prefix .. ':' .. qtype
local ready_type_registry = prefix .. ':ready:queue_type'
local active_type_registry = prefix .. ':active:queue_type'
local interval_map_key = prefix .. ':interval'

-- step 1: lowest-scored eligible Q
local candidates = redis.call('ZRANGEBYSCORE', ready_set_key, '-inf', now, 'LIMIT', 0, 1)
if #candidates == 0 then
	return {}
end
local qid = candidates[1]
local job_list_key = prefix .. ':' .. qtype .. ':' .. qid

-- step 2: pop the head job
local jid = redis.call('LPOP', job_list_key)
if not jid then
	redis.call('ZREM', ready_set_key, qid)
	return {}
end

-- step 3: read payload
local payload_map_key = prefix .. ':payload'
local payload_field = qtype .. ':' .. qid .. ':' .. jid
local payload = redis.call('HGET', payload_map_key, payload_field)

-- steps 4-5: remove or re-score Q depending on remaining backlog
local remaining = redis.call('LLEN', job_list_key)
if remaining == 0 then
	redis.call('ZREM', ready_set_key, qid)
else
	local interval_field = qtype .. ':' .. qid
	local interval = tonumber(redis.call('HGET', interval_map_key, interval_field)) or 0
	redis.call('ZADD', ready_set_key, now + interval, qid)
end

-- step 6: drop the type registry entry if the ready set emptied
if redis.call('ZCARD', ready_set_key) == 0 then
	redis.call('SREM', ready_type_registry, qtype)
end

-- step 7: mark the job active with an expiry score
local active_set_key = prefix .. ':' .. qtype .. ':active'
local active_member = qid .. ':' .. jid
redis.call('ZADD', active_set_key, now + expire_ms, active_member)
redis.call('SADD', active_type_registry, qtype)

-- step 8: dequeue counters, symmetric to enqueue
local minute = math.floor(now / 60000)
local global_key = prefix .. ':dequeue:' .. minute
local tenant_key = prefix .. ':' .. qtype .. ':' .. qid .. ':dequeue:' .. minute
redis.call('INCR', global_key)
redis.call('EXPIRE', global_key, 600)
redis.call('INCR', tenant_key)
redis.call('EXPIRE', tenant_key, 600)

return {qid, jid, payload}
`

const finishScriptSrc = `
local prefix = KEYS[1]
local qtype = KEYS[2]
local qid = ARGV[1]
local jid = ARGV[2]

local active_set_key = prefix .. ':' .. qtype .. ':active'
local active_member = qid .. ':' .. jid

-- step 1: remove from active set; absence means already finished/expired
local removed = redis.call('ZREM', active_set_key, active_member)
if removed == 0 then
	return 0
end

-- step 2: delete the payload entry
local payload_map_key = prefix .. ':payload'
local payload_field = qtype .. ':' .. qid .. ':' .. jid
redis.call('HDEL', payload_map_key, payload_field)

-- step 3: drop the active type registry entry if the active set emptied
if redis.call('ZCARD', active_set_key) == 0 then
	redis.call('SREM', prefix .. ':active:queue_type', qtype)
end

return 1
`

const intervalScriptSrc = `
local prefix = KEYS[1]
local qtype = KEYS[2]
local qid = ARGV[1]
local interval = tonumber(ARGV[2])

local job_list_key = prefix .. ':' .. qtype .. ':' .. qid
local interval_map_key = prefix .. ':interval'
local interval_field = qtype .. ':' .. qid

local has_jobs = redis.call('EXISTS', job_list_key)
local has_binding = redis.call('HEXISTS', interval_map_key, interval_field)
if has_jobs == 0 and has_binding == 0 then
	return 0
end

redis.call('HSET', interval_map_key, interval_field, interval)
return 1
`

const requeueScriptSrc = `
local prefix = KEYS[1]
local qtype = KEYS[2]
local now = tonumber(ARGV[1])

local active_set_key = prefix .. ':' .. qtype .. ':active'
local ready_set_key = prefix .. ':' .. qtype
local ready_type_registry = prefix .. ':ready:queue_type'
local active_type_registry = prefix .. ':active:queue_type'

local expired = redis.call('ZRANGEBYSCORE', active_set_key, '-inf', now)
local count = 0
for _, member in ipairs(expired) do
	local sep = string.find(member, ':')
	local qid = string.sub(member, 1, sep - 1)
	local jid = string.sub(member, sep + 1)

	redis.call('ZREM', active_set_key, member)

	local job_list_key = prefix .. ':' .. qtype .. ':' .. qid
	redis.call('LPUSH', job_list_key, jid)

	if redis.call('ZSCORE', ready_set_key, qid) == false then
		redis.call('ZADD', ready_set_key, now, qid)
	end
	count = count + 1
end

if redis.call('ZCARD', active_set_key) == 0 then
	redis.call('SREM', active_type_registry, qtype)
end
if redis.call('ZCARD', ready_set_key) > 0 then
	redis.call('SADD', ready_type_registry, qtype)
end

return count
`

// metricsScriptSrc reads the last 10 minute-buckets of enqueue/dequeue
// counters rooted at KEYS[1] (either the global prefix or a "P:T:Q" tenant
// base) and returns two flat sequences of interleaved (minute, count) pairs.
const metricsScriptSrc = `
local base = KEYS[1]
local now = tonumber(ARGV[1])
local current_minute = math.floor(now / 60000)

local enqueue_counts = {}
local dequeue_counts = {}
for i = 0, 9 do
	local m = current_minute - i
	local ec = redis.call('GET', base .. ':enqueue:' .. m)
	local dc = redis.call('GET', base .. ':dequeue:' .. m)
	table.insert(enqueue_counts, m)
	table.insert(enqueue_counts, tonumber(ec) or 0)
	table.insert(dequeue_counts, m)
	table.insert(dequeue_counts, tonumber(dc) or 0)
end

return {enqueue_counts, dequeue_counts}
`

var (
	enqueueScript  = redis.NewScript(enqueueScriptSrc)
	dequeueScript  = redis.NewScript(dequeueScriptSrc)
	finishScript   = redis.NewScript(finishScriptSrc)
	intervalScript = redis.NewScript(intervalScriptSrc)
	requeueScript  = redis.NewScript(requeueScriptSrc)
	metricsScript  = redis.NewScript(metricsScriptSrc)
)
