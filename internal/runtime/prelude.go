package runtime

// preludeSource is prepended to every metaprogram run through Subprocess. It
// defines the sink functions the transpiler's output calls, plus a Lua
// reimplementation of the value package's serialization rules for
// outputValue, so a table or number produced by Lua code serializes
// identically to the way the value package's Serialize function, with debug
// off, would render the equivalent Go value.
const preludeSource = `
local _parts = {}

function outputLua(s)
	_parts[#_parts + 1] = s
end

function printf(fmt, ...)
	io.stderr:write(string.format(fmt, ...))
end

function fileExists(path)
	local f = io.open(path, "r")
	if f == nil then
		return false
	end
	f:close()
	return true
end

function getFileContents(path)
	local f = io.open(path, "r")
	if f == nil then
		return nil
	end
	local contents = f:read("*a")
	f:close()
	return contents
end

function run(path)
	io.stderr:write("\2RUN\2" .. path .. "\n")
	io.stderr:flush()
	local resp = io.read("*l")
	if resp == nil then
		error("run: no response from host for " .. path)
	end
	if resp:sub(1, 1) == "\3" then
		error(resp:sub(2))
	end
	local chunk, err = (loadstring or load)("return " .. resp)
	if chunk == nil then
		error("run: malformed response for " .. path .. ": " .. tostring(err))
	end
	return chunk()
end

local function formatNumber(n)
	if n ~= n then
		return "0/0"
	end
	if n == math.huge then
		return "math.huge"
	end
	if n == -math.huge then
		return " -math.huge"
	end
	if n == 0 then
		return "0"
	end
	local sign = ""
	if n < 0 then
		sign = " "
		n = -n
	end
	if n == math.floor(n) and math.abs(n) < 1e15 then
		return sign .. string.format("%d", n)
	end
	return sign .. string.format("%.14g", n)
end

local function quoteString(s)
	local out = {}
	for i = 1, #s do
		local c = s:sub(i, i)
		local b = string.byte(c)
		if c == "\\" then
			out[#out + 1] = "\\\\"
		elseif c == "\"" then
			out[#out + 1] = "\\\""
		elseif c == "\n" then
			out[#out + 1] = "\\\n"
		elseif c == "\r" then
			out[#out + 1] = "\\r"
		elseif c == "\t" then
			out[#out + 1] = "\\t"
		elseif c == "\a" then
			out[#out + 1] = "\\a"
		elseif c == "\b" then
			out[#out + 1] = "\\b"
		elseif c == "\f" then
			out[#out + 1] = "\\f"
		elseif c == "\v" then
			out[#out + 1] = "\\v"
		elseif b < 32 or b == 127 then
			out[#out + 1] = string.format("\\%03d", b)
		else
			out[#out + 1] = c
		end
	end
	return "\"" .. table.concat(out) .. "\""
end

local serializeValue

local function isIdentifier(s)
	return string.match(s, "^[A-Za-z_][A-Za-z0-9_]*$") ~= nil
end

local function serializeTable(t)
	local arrayPart = {}
	local i = 1
	while t[i] ~= nil do
		arrayPart[#arrayPart + 1] = serializeValue(t[i])
		i = i + 1
	end
	local usedUpTo = i - 1

	local restKeys = {}
	for k, _ in pairs(t) do
		if not (type(k) == "number" and k >= 1 and k <= usedUpTo and k == math.floor(k)) then
			restKeys[#restKeys + 1] = k
		end
	end
	table.sort(restKeys, function(a, b)
		return tostring(a) < tostring(b)
	end)

	local pieces = {}
	for _, v in ipairs(arrayPart) do
		pieces[#pieces + 1] = v
	end
	for _, k in ipairs(restKeys) do
		if type(k) == "table" then
			error("Table keys cannot be tables.")
		end
		local vs = serializeValue(t[k])
		if type(k) == "string" and isIdentifier(k) then
			pieces[#pieces + 1] = k .. "=" .. vs
		else
			pieces[#pieces + 1] = "[" .. serializeValue(k) .. "]=" .. vs
		end
	end
	return "{" .. table.concat(pieces, ", ") .. "}"
end

serializeValue = function(v)
	local t = type(v)
	if v == nil then
		return "nil"
	elseif t == "boolean" then
		return v and "true" or "false"
	elseif t == "string" then
		return quoteString(v)
	elseif t == "number" then
		return formatNumber(v)
	elseif t == "table" then
		return serializeTable(v)
	else
		error("Cannot serialize value of type '" .. t .. "'.")
	end
end

function outputValue(v)
	_parts[#_parts + 1] = serializeValue(v)
end

local function _collect()
	return table.concat(_parts)
end
`
