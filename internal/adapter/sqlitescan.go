package adapter

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/jordanmatta/recollect/internal/models"
)

// conversationsFromSQLite opens a tool database read-only and pulls
// conversations out of any table whose name or keys look conversational.
// Electron-style key/value tables (ItemTable, cursorDiskKV) hold JSON blobs
// under string keys; anything else is scanned row by row.
func conversationsFromSQLite(path, source string, st *Stats) []models.Conversation {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&immutable=1")
	if err != nil {
		st.fail(path, "sqlite-open", err.Error())
		return nil
	}
	defer db.Close()

	tables, err := listTables(db)
	if err != nil {
		st.fail(path, "sqlite-tables", err.Error())
		return nil
	}

	var convs []models.Conversation
	for _, table := range tables {
		if isKeyValueTable(table) {
			convs = append(convs, conversationsFromKVTable(db, path, table, source, st)...)
			continue
		}
		if nameLooksConversational(table) {
			convs = append(convs, conversationsFromRows(db, path, table, source, st)...)
		}
	}
	return convs
}

func listTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func isKeyValueTable(name string) bool {
	lower := strings.ToLower(name)
	return lower == "itemtable" || strings.HasSuffix(lower, "diskkv")
}

func conversationsFromKVTable(db *sql.DB, path, table, source string, st *Stats) []models.Conversation {
	rows, err := db.Query(fmt.Sprintf(`SELECT key, value FROM %q`, table))
	if err != nil {
		st.fail(path, "sqlite-kv", err.Error())
		return nil
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			st.fail(path, "sqlite-kv", err.Error())
			continue
		}
		if !nameLooksConversational(key) {
			continue
		}
		convs = append(convs, conversationsFromJSON(value, source, path+"#"+key, st)...)
	}
	return convs
}

// conversationsFromRows reads a heuristically matched table as generic maps
// and feeds each row through the parse cascade.
func conversationsFromRows(db *sql.DB, path, table, source string, st *Stats) []models.Conversation {
	rows, err := db.Query(fmt.Sprintf(`SELECT * FROM %q LIMIT 1000`, table))
	if err != nil {
		st.fail(path, "sqlite-rows", err.Error())
		return nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		st.fail(path, "sqlite-rows", err.Error())
		return nil
	}

	var convs []models.Conversation
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			st.fail(path, "sqlite-rows", err.Error())
			continue
		}

		rowMap := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			switch v := values[i].(type) {
			case []byte:
				rowMap[strings.ToLower(col)] = string(v)
			default:
				rowMap[strings.ToLower(col)] = v
			}
		}
		if conv := conversationFromMap(rowMap, source, path+"#"+table, st); conv != nil {
			convs = append(convs, *conv)
		}
	}
	return convs
}

// conversationsFromJSON decodes an arbitrary JSON blob and recovers whatever
// conversations it holds: a single object, an array of objects, or an array
// of messages.
func conversationsFromJSON(data []byte, source, path string, st *Stats) []models.Conversation {
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		st.fail(path, "json-decode", err.Error())
		return nil
	}
	return conversationsFromValue(decoded, source, path, st)
}

func conversationsFromValue(decoded interface{}, source, path string, st *Stats) []models.Conversation {
	switch v := decoded.(type) {
	case map[string]interface{}:
		// "prompts" wrappers (e.g. aiService.prompts) hold an array of pairs;
		// export files wrap their list under "conversations".
		for _, key := range []string{"prompts", "conversations"} {
			if wrapped, ok := v[key].([]interface{}); ok {
				return conversationsFromValue(wrapped, source, path, st)
			}
		}
		if conv := conversationFromMap(v, source, path, st); conv != nil {
			return []models.Conversation{*conv}
		}
		return nil
	case []interface{}:
		if len(v) == 0 {
			return nil
		}
		// An array is either a list of conversations or a list of messages
		// forming one conversation.
		if objs, ok := asConversationList(v); ok {
			var convs []models.Conversation
			for _, obj := range objs {
				if conv := conversationFromMap(obj, source, path, st); conv != nil {
					convs = append(convs, *conv)
				}
			}
			return convs
		}
		var msgs []models.Message
		for _, item := range v {
			msgs = append(msgs, parseMessageValue(item, path, st)...)
		}
		if len(msgs) == 0 {
			return nil
		}
		conv := models.Conversation{
			Source:    source,
			Title:     firstUserPreview(msgs, 100),
			Messages:  msgs,
			CreatedAt: earliestTimestamp(msgs),
			UpdatedAt: latestTimestamp(msgs),
		}
		conv.EnsureID()
		return []models.Conversation{conv}
	default:
		st.fail(path, "json-shape", "top-level value is neither object nor array")
		return nil
	}
}

func asConversationList(items []interface{}) ([]map[string]interface{}, bool) {
	var objs []map[string]interface{}
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if _, hasMessages := obj["messages"]; !hasMessages {
			return nil, false
		}
		objs = append(objs, obj)
	}
	return objs, true
}
