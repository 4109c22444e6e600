package dbclient

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"qrstudio/internal/domain"
)

// extras decodes the connection's driver-specific options.
func extras(conn *domain.DatabaseConnection) map[string]string {
	out := map[string]string{}
	if conn.ExtraJSON != "" {
		_ = json.Unmarshal([]byte(conn.ExtraJSON), &out)
	}
	return out
}

func mysqlDSN(conn *domain.DatabaseConnection, password string) string {
	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", conn.Host, conn.PortOrDefault())
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if conn.SSLMode == "require" {
		cfg.TLSConfig = "true"
	}
	for k, v := range extras(conn) {
		cfg.Params[k] = v
	}
	return cfg.FormatDSN()
}

func postgresDSN(conn *domain.DatabaseConnection, password string) string {
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	for k, v := range extras(conn) {
		q.Set(k, v)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(conn.Username, password),
		Host:     conn.Host + ":" + strconv.Itoa(conn.PortOrDefault()),
		Path:     "/" + conn.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// sqliteDSN opens the external file read-only.
func sqliteDSN(conn *domain.DatabaseConnection) string {
	path := strings.TrimPrefix(conn.Host, "file:")
	return "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
}

// mongoURI builds the connection string and picks the database name. A
// full mongodb:// or mongodb+srv:// host is used as given, with <password>
// placeholders filled in.
func mongoURI(conn *domain.DatabaseConnection, password string) (uri, dbName string, err error) {
	if strings.HasPrefix(conn.Host, "mongodb://") || strings.HasPrefix(conn.Host, "mongodb+srv://") {
		uri = conn.Host
		if password != "" {
			esc := url.QueryEscape(password)
			uri = strings.ReplaceAll(uri, "<password>", esc)
			uri = strings.ReplaceAll(uri, "<db_password>", esc)
		}
	} else {
		u := url.URL{Scheme: "mongodb", Host: conn.Host + ":" + strconv.Itoa(conn.PortOrDefault()), Path: "/"}
		if conn.Username != "" {
			u.User = url.UserPassword(conn.Username, password)
		}
		q := url.Values{}
		for k, v := range extras(conn) {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		uri = u.String()
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("%w: bad mongo uri: %v", domain.ErrValidation, err)
	}
	dbName = conn.Database
	if dbName == "" {
		dbName = strings.Trim(parsed.Path, "/")
	}
	if dbName == "" {
		return "", "", fmt.Errorf("%w: mongo connection needs a database name", domain.ErrValidation)
	}
	return uri, dbName, nil
}
