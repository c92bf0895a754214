package warehouse

// Config holds Snowflake configuration for the ad-revenue warehouse.
type Config struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
	Table     string `yaml:"table"`
}

// QualifiedTable returns the fully qualified fact-table reference.
func (c Config) QualifiedTable() string {
	return c.Database + "." + c.Schema + "." + c.Table
}

// ParseConnectionString extracts components from the connection string
// Format: scheme=https;ACCOUNT=xxx;HOST=yyy;port=443;USER=zzz;PASSWORD=www;DB=aaa;
func ParseConnectionString(connStr string) Config {
	parts := make(map[string]string)

	var current string
	for _, c := range connStr {
		if c == ';' {
			if idx := indexOfChar(current, '='); idx > 0 {
				key := current[:idx]
				value := current[idx+1:]
				parts[key] = value
			}
			current = ""
		} else {
			current += string(c)
		}
	}
	// Handle last part without trailing semicolon
	if current != "" {
		if idx := indexOfChar(current, '='); idx > 0 {
			key := current[:idx]
			value := current[idx+1:]
			parts[key] = value
		}
	}

	// Parse database.schema from DB field if present
	db := parts["DB"]
	var database, schema string
	if idx := indexOfChar(db, '.'); idx > 0 {
		database = db[:idx]
		schema = db[idx+1:]
	} else {
		database = db
	}

	return Config{
		Account:  parts["ACCOUNT"],
		User:     parts["USER"],
		Password: parts["PASSWORD"],
		Database: database,
		Schema:   schema,
	}
}

func indexOfChar(s string, c rune) int {
	for i, r := range s {
		if r == c {
			return i
		}
	}
	return -1
}
