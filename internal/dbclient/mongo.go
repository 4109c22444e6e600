package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"qrstudio/internal/domain"
)

type mongoConnector struct {
	client *mongo.Client
	dbName string

	mu      sync.Mutex
	cursor  *mongo.Cursor
	fetched int
}

// mongoQuery is the JSON form of an import query against MongoDB. Filter,
// projection and sort accept Extended JSON ($oid, $date, ...).
type mongoQuery struct {
	Collection string          `json:"collection"`
	Operation  string          `json:"operation,omitempty"` // find (default) or aggregate
	Filter     json.RawMessage `json:"filter,omitempty"`
	Projection json.RawMessage `json:"projection,omitempty"`
	Sort       json.RawMessage `json:"sort,omitempty"`
	Limit      int64           `json:"limit,omitempty"`
	Pipeline   json.RawMessage `json:"pipeline,omitempty"`
}

func newMongoConnector(conn *domain.DatabaseConnection, password string) (*mongoConnector, error) {
	uri, dbName, err := mongoURI(conn, password)
	if err != nil {
		return nil, err
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w: %v", domain.ErrRemote, err)
	}
	log.Printf("[Database] mongo client ready for %s/%s", conn.Name, dbName)
	return &mongoConnector{client: client, dbName: dbName}, nil
}

// parseMongoQuery decodes the query text and its Extended JSON parts.
func parseMongoQuery(query string) (op, collection string, filter, projection, sortDoc bson.D, pipeline bson.A, limit int64, err error) {
	var mq mongoQuery
	if err = json.Unmarshal([]byte(query), &mq); err != nil {
		err = fmt.Errorf("%w: invalid query JSON: %v", domain.ErrValidation, err)
		return
	}
	if mq.Collection == "" {
		err = fmt.Errorf("%w: query must specify \"collection\"", domain.ErrValidation)
		return
	}
	op = mq.Operation
	if op == "" {
		op = "find"
	}
	if op != "find" && op != "aggregate" {
		err = fmt.Errorf("%w: operation %q is not allowed for imports", domain.ErrValidation, op)
		return
	}
	collection, limit = mq.Collection, mq.Limit

	decodeDoc := func(name string, raw json.RawMessage) (bson.D, error) {
		doc := bson.D{}
		if len(raw) == 0 {
			return doc, nil
		}
		if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrValidation, name, err)
		}
		return doc, nil
	}
	if filter, err = decodeDoc("filter", mq.Filter); err != nil {
		return
	}
	if projection, err = decodeDoc("projection", mq.Projection); err != nil {
		return
	}
	if sortDoc, err = decodeDoc("sort", mq.Sort); err != nil {
		return
	}
	pipeline = bson.A{}
	if len(mq.Pipeline) > 0 {
		// ExtJSON needs a document at the top level.
		wrapped := append(append([]byte(`{"p":`), mq.Pipeline...), '}')
		var holder struct {
			P bson.A `bson:"p"`
		}
		if err = bson.UnmarshalExtJSON(wrapped, false, &holder); err != nil {
			err = fmt.Errorf("%w: pipeline: %v", domain.ErrValidation, err)
			return
		}
		pipeline = holder.P
	}
	return
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemote, err)
	}
	return nil
}

func (m *mongoConnector) Query(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCursorLocked(ctx)

	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}
	op, collName, filter, projection, sortDoc, pipeline, limit, err := parseMongoQuery(query)
	if err != nil {
		return nil, err
	}
	coll := m.client.Database(m.dbName).Collection(collName)

	var cursor *mongo.Cursor
	switch op {
	case "aggregate":
		cursor, err = coll.Aggregate(ctx, pipeline, options.Aggregate().SetBatchSize(int32(fetchSize)))
	default:
		opts := options.Find().SetBatchSize(int32(fetchSize))
		if len(projection) > 0 {
			opts.SetProjection(projection)
		}
		if len(sortDoc) > 0 {
			opts.SetSort(sortDoc)
		}
		if limit > 0 {
			opts.SetLimit(limit)
		}
		cursor, err = coll.Find(ctx, filter, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", op, collName, domain.ErrRemote, err)
	}
	m.cursor = cursor
	m.fetched = 0
	return m.fetchLocked(ctx, fetchSize)
}

func (m *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor == nil {
		return nil, fmt.Errorf("%w: no active cursor", domain.ErrValidation)
	}
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}
	return m.fetchLocked(ctx, fetchSize)
}

func (m *mongoConnector) fetchLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []bson.D
	for len(docs) < fetchSize && m.cursor.Next(ctx) {
		var doc bson.D
		if err := m.cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := m.cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w: %v", domain.ErrRemote, err)
	}
	m.fetched += len(docs)

	columns, rows := docsToRows(docs)
	hasMore := len(docs) == fetchSize
	if !hasMore {
		m.closeCursorLocked(ctx)
	}
	return &QueryPage{Columns: columns, Rows: rows, TotalFetched: m.fetched, HasMore: hasMore}, nil
}

// docsToRows flattens documents into a table: _id first, then the other
// top-level keys sorted.
func docsToRows(docs []bson.D) ([]string, [][]any) {
	seen := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for _, e := range doc {
			if !seen[e.Key] {
				seen[e.Key] = true
				columns = append(columns, e.Key)
			}
		}
	}
	sort.SliceStable(columns, func(i, j int) bool {
		if columns[i] == "_id" || columns[j] == "_id" {
			return columns[i] == "_id"
		}
		return columns[i] < columns[j]
	})

	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		byKey := make(map[string]any, len(doc))
		for _, e := range doc {
			byKey[e.Key] = e.Value
		}
		row := make([]any, len(columns))
		for j, c := range columns {
			if v, ok := byKey[c]; ok {
				row[j] = mongoValue(v)
			}
		}
		rows = append(rows, row)
	}
	return columns, rows
}

// mongoValue turns a BSON value into something a campaign row can hold.
func mongoValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int32, int64, float64:
		return t
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC().Format(time.RFC3339)
	case bson.Decimal128:
		return t.String()
	case bson.D, bson.A, bson.M:
		b, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: t}}, false, false)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		var holder map[string]json.RawMessage
		if json.Unmarshal(b, &holder) == nil {
			return string(holder["v"])
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (m *mongoConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db := m.client.Database(m.dbName)
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w: %v", domain.ErrRemote, err)
	}
	sort.Strings(names)

	schema := &SchemaInfo{}
	for _, name := range names {
		table := TableInfo{Name: name}
		var doc bson.D
		err := db.Collection(name).FindOne(ctx, bson.D{}).Decode(&doc)
		if err == nil {
			for _, e := range doc {
				table.Columns = append(table.Columns, ColumnInfo{Name: e.Key, Type: fmt.Sprintf("%T", e.Value)})
			}
		}
		schema.Tables = append(schema.Tables, table)
	}
	return schema, nil
}

func (m *mongoConnector) Close() error {
	m.mu.Lock()
	m.closeCursorLocked(context.Background())
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoConnector) closeCursorLocked(ctx context.Context) {
	if m.cursor != nil {
		m.cursor.Close(ctx)
		m.cursor = nil
	}
}
