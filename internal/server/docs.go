package server

import (
	"slices"
	"strings"

	"github.com/eternalApril/lettuce/internal/resp"
)

type commandMetadata struct {
	arity    int      // Arity includes the command name itself, negative means at least -arity
	flags    []string // read, write, fast, denyoom, etc
	firstKey int      // 1-based index of the first key
	lastKey  int      // 1-based index of the last key
	step     int      // Step count for finding keys
}

var (
	commandRegistry = map[string]commandMetadata{
		// connection and server
		"PING":     {-1, []string{"fast", "stale"}, 0, 0, 0},
		"ECHO":     {2, []string{"fast"}, 0, 0, 0},
		"COMMAND":  {-1, []string{"random", "loading", "stale"}, 0, 0, 0},
		"FLUSHALL": {1, []string{"write"}, 0, 0, 0},
		"DBSIZE":   {1, []string{"readonly", "fast"}, 0, 0, 0},
		"SAVE":     {1, []string{"admin", "noscript"}, 0, 0, 0},
		"BGSAVE":   {1, []string{"admin", "noscript"}, 0, 0, 0},

		// generic
		"KEYS":    {-1, []string{"readonly", "sort_for_script"}, 0, 0, 0},
		"TYPE":    {2, []string{"readonly", "fast"}, 1, 1, 1},
		"DEL":     {-2, []string{"write"}, 1, -1, 1},
		"EXPIRE":  {3, []string{"write", "fast"}, 1, 1, 1},
		"RENAME":  {3, []string{"write"}, 1, 2, 1},
		"TTL":     {2, []string{"readonly", "fast"}, 1, 1, 1},
		"PTTL":    {2, []string{"readonly", "fast"}, 1, 1, 1},
		"PERSIST": {2, []string{"write", "fast"}, 1, 1, 1},

		// string
		"GET": {2, []string{"readonly", "fast"}, 1, 1, 1},
		"SET": {-3, []string{"write", "denyoom"}, 1, 1, 1},

		// list
		"LPUSH":  {-3, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"RPUSH":  {-3, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"LPOP":   {2, []string{"write", "fast"}, 1, 1, 1},
		"RPOP":   {2, []string{"write", "fast"}, 1, 1, 1},
		"LLEN":   {2, []string{"readonly", "fast"}, 1, 1, 1},
		"LREM":   {4, []string{"write"}, 1, 1, 1},
		"LINDEX": {3, []string{"readonly"}, 1, 1, 1},
		"LSET":   {4, []string{"write", "denyoom"}, 1, 1, 1},
		"LGET":   {2, []string{"readonly"}, 1, 1, 1},
		"LRANGE": {4, []string{"readonly"}, 1, 1, 1},

		// hash
		"HSET":    {4, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"HGET":    {3, []string{"readonly", "fast"}, 1, 1, 1},
		"HEXISTS": {3, []string{"readonly", "fast"}, 1, 1, 1},
		"HDEL":    {3, []string{"write", "fast"}, 1, 1, 1},
		"HGETALL": {2, []string{"readonly"}, 1, 1, 1},
		"HKEYS":   {2, []string{"readonly", "sort_for_script"}, 1, 1, 1},
		"HVALS":   {2, []string{"readonly", "sort_for_script"}, 1, 1, 1},
		"HLEN":    {2, []string{"readonly", "fast"}, 1, 1, 1},
		"HMSET":   {-4, []string{"write", "denyoom", "fast"}, 1, 1, 1},
	}
)

// checkArity reports whether argc (command name included) satisfies the arity of name
func checkArity(name string, argc int) bool {
	meta, ok := commandRegistry[name]
	if !ok {
		return true
	}
	if meta.arity < 0 {
		return argc >= -meta.arity
	}
	return argc == meta.arity
}

// isWriteCommand helper what command change state database
func isWriteCommand(name string) bool {
	return slices.Contains(commandRegistry[name].flags, "write")
}

// commandDoc stores a description for the command
type commandDoc struct {
	summary    string
	complexity string
	group      string
	since      string
}

// commandDocsRegistry documentation registry
var commandDocsRegistry = map[string]commandDoc{
	"PING":     {"Ping the server.", "O(1)", "connection", "1.0.0"},
	"ECHO":     {"Echo the given string.", "O(1)", "connection", "1.0.0"},
	"COMMAND":  {"Get array of command details.", "O(N) where N is the number of commands to look up.", "server", "1.0.0"},
	"FLUSHALL": {"Remove all keys.", "O(N) where N is the total number of keys.", "server", "1.0.0"},
	"DBSIZE":   {"Return the number of keys.", "O(N) where N is the number of shards.", "server", "1.0.0"},
	"SAVE":     {"Synchronously save the dataset to disk.", "O(N) where N is the total number of keys.", "server", "1.0.0"},
	"BGSAVE":   {"Asynchronously save the dataset to disk.", "O(1)", "server", "1.0.0"},

	"KEYS":    {"Find all keys matching the given pattern.", "O(N) with N being the number of keys.", "generic", "1.0.0"},
	"TYPE":    {"Determine the type stored at key.", "O(1)", "generic", "1.0.0"},
	"DEL":     {"Delete a key.", "O(N) where N is the number of keys that will be removed.", "generic", "1.0.0"},
	"EXPIRE":  {"Set a key's time to live in seconds.", "O(1)", "generic", "1.0.0"},
	"RENAME":  {"Rename a key.", "O(1)", "generic", "1.0.0"},
	"TTL":     {"Get the time to live for a key in seconds.", "O(1)", "generic", "1.0.0"},
	"PTTL":    {"Get the time to live for a key in milliseconds.", "O(1)", "generic", "1.0.0"},
	"PERSIST": {"Remove the expiration from a key.", "O(1)", "generic", "1.0.0"},

	"GET": {"Get the value of a key.", "O(1)", "string", "1.0.0"},
	"SET": {"Set the string value of a key.", "O(1)", "string", "1.0.0"},

	"LPUSH":  {"Prepend one or multiple elements to a list.", "O(N) where N is the number of elements.", "list", "1.0.0"},
	"RPUSH":  {"Append one or multiple elements to a list.", "O(N) where N is the number of elements.", "list", "1.0.0"},
	"LPOP":   {"Remove and get the first element in a list.", "O(1)", "list", "1.0.0"},
	"RPOP":   {"Remove and get the last element in a list.", "O(1)", "list", "1.0.0"},
	"LLEN":   {"Get the length of a list.", "O(1)", "list", "1.0.0"},
	"LREM":   {"Remove elements from a list.", "O(N) where N is the length of the list.", "list", "1.0.0"},
	"LINDEX": {"Get an element from a list by its index.", "O(1)", "list", "1.0.0"},
	"LSET":   {"Set the value of an element in a list by its index.", "O(1)", "list", "1.0.0"},
	"LGET":   {"Get all elements of a list.", "O(N) where N is the length of the list.", "list", "1.0.0"},
	"LRANGE": {"Get a range of elements from a list.", "O(S+N) where S is the start offset and N the number of elements.", "list", "1.0.0"},

	"HSET":    {"Set the value of a hash field.", "O(1)", "hash", "1.0.0"},
	"HGET":    {"Get the value of a hash field.", "O(1)", "hash", "1.0.0"},
	"HEXISTS": {"Determine if a hash field exists.", "O(1)", "hash", "1.0.0"},
	"HDEL":    {"Delete a hash field.", "O(1)", "hash", "1.0.0"},
	"HGETALL": {"Get all the fields and values in a hash.", "O(N) where N is the size of the hash.", "hash", "1.0.0"},
	"HKEYS":   {"Get all the fields in a hash.", "O(N) where N is the size of the hash.", "hash", "1.0.0"},
	"HVALS":   {"Get all the values in a hash.", "O(N) where N is the size of the hash.", "hash", "1.0.0"},
	"HLEN":    {"Get the number of fields in a hash.", "O(1)", "hash", "1.0.0"},
	"HMSET":   {"Set multiple hash fields to multiple values.", "O(N) where N is the number of fields being set.", "hash", "1.0.0"},
}

func makeFlagsArray(flags []string) resp.Value {
	vals := make([]resp.Value, len(flags))
	for i, f := range flags {
		vals[i] = resp.MakeSimpleString(f)
	}
	return resp.MakeArray(vals)
}

func makeInfoCmdArray(name string) []resp.Value {
	meta := commandRegistry[name]
	return []resp.Value{
		resp.MakeBulkString(strings.ToLower(name)),
		resp.MakeInteger(int64(meta.arity)),
		makeFlagsArray(meta.flags),
		resp.MakeInteger(int64(meta.firstKey)),
		resp.MakeInteger(int64(meta.lastKey)),
		resp.MakeInteger(int64(meta.step)),
	}
}

// sortedCommandNames returns the registered names in a stable order
func sortedCommandNames() []string {
	names := make([]string, 0, len(commandRegistry))
	for name := range commandRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func getAllCommands() resp.Value {
	names := sortedCommandNames()
	cmdArray := make([]resp.Value, 0, len(names))
	for _, name := range names {
		cmdArray = append(cmdArray, resp.MakeArray(makeInfoCmdArray(name)))
	}
	return resp.MakeArray(cmdArray)
}

// getCommandsDocs returns documentation for specified commands or all commands
// Format: [Name, [Summary, val, Since, val...], Name, [...]]
func getCommandsDocs(args []string) resp.Value {
	var targets []string

	if len(args) == 0 {
		targets = sortedCommandNames()
	} else {
		targets = make([]string, 0, len(args))
		for _, arg := range args {
			targets = append(targets, strings.ToUpper(arg))
		}
	}

	result := make([]resp.Value, 0, len(targets)*2)

	for _, name := range targets {
		doc, ok := commandDocsRegistry[name]
		if !ok {
			continue
		}

		result = append(result, resp.MakeBulkString(strings.ToLower(name)))

		props := []resp.Value{
			resp.MakeBulkString("summary"),
			resp.MakeBulkString(doc.summary),
			resp.MakeBulkString("since"),
			resp.MakeBulkString(doc.since),
			resp.MakeBulkString("group"),
			resp.MakeBulkString(doc.group),
			resp.MakeBulkString("complexity"),
			resp.MakeBulkString(doc.complexity),
		}

		result = append(result, resp.MakeArray(props))
	}

	return resp.MakeArray(result)
}
