package postgrest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Query accumulates filters and modifiers for a single table request.
// Builder methods mutate and return the receiver.
type Query struct {
	client     *Client
	table      string
	method     string
	params     url.Values
	order      []string
	prefer     []string
	body       interface{}
	idempotent bool
}

// Select sets the projected columns, e.g. "id, driver_id, amount".
func (q *Query) Select(columns string) *Query {
	q.params.Set("select", strings.ReplaceAll(columns, " ", ""))
	return q
}

func (q *Query) filter(column, op string, value interface{}) *Query {
	q.params.Add(column, op+"."+FormatValue(value))
	return q
}

func (q *Query) Eq(column string, value interface{}) *Query  { return q.filter(column, "eq", value) }
func (q *Query) Neq(column string, value interface{}) *Query { return q.filter(column, "neq", value) }
func (q *Query) Gt(column string, value interface{}) *Query  { return q.filter(column, "gt", value) }
func (q *Query) Gte(column string, value interface{}) *Query { return q.filter(column, "gte", value) }
func (q *Query) Lt(column string, value interface{}) *Query  { return q.filter(column, "lt", value) }
func (q *Query) Lte(column string, value interface{}) *Query { return q.filter(column, "lte", value) }

// In matches column against any of values.
func (q *Query) In(column string, values []string) *Query {
	q.params.Add(column, "in."+quoteList(values))
	return q
}

// NotIn excludes rows whose column matches any of values.
func (q *Query) NotIn(column string, values []string) *Query {
	q.params.Add(column, "not.in."+quoteList(values))
	return q
}

// IsNull matches rows where column is null.
func (q *Query) IsNull(column string) *Query {
	q.params.Add(column, "is.null")
	return q
}

// NotNull matches rows where column is not null.
func (q *Query) NotNull(column string) *Query {
	q.params.Add(column, "not.is.null")
	return q
}

// Order appends a sort key. Calls accumulate in priority order.
func (q *Query) Order(column string, desc bool) *Query {
	dir := "asc"
	if desc {
		dir = "desc"
	}
	q.order = append(q.order, column+"."+dir)
	return q
}

func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

func (q *Query) Offset(n int) *Query {
	q.params.Set("offset", strconv.Itoa(n))
	return q
}

// Count asks for the exact total row count in Result.Count.
func (q *Query) Count() *Query {
	q.prefer = append(q.prefer, "count=exact")
	return q
}

// Insert posts rows (a struct, map or slice of either).
func (q *Query) Insert(rows interface{}) *Query {
	q.method = http.MethodPost
	q.body = rows
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Upsert posts rows, merging with existing rows on the onConflict columns.
func (q *Query) Upsert(rows interface{}, onConflict string) *Query {
	q.method = http.MethodPost
	q.body = rows
	if onConflict != "" {
		q.params.Set("on_conflict", strings.ReplaceAll(onConflict, " ", ""))
	}
	q.prefer = append(q.prefer, "resolution=merge-duplicates", "return=representation")
	return q
}

// Update patches every row matched by the filters.
func (q *Query) Update(values interface{}) *Query {
	q.method = http.MethodPatch
	q.body = values
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Delete removes every row matched by the filters.
func (q *Query) Delete() *Query {
	q.method = http.MethodDelete
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Once disables retries for writes that must not be repeated blindly.
func (q *Query) Once() *Query {
	q.idempotent = false
	return q
}

// Execute sends the request.
func (q *Query) Execute(ctx context.Context) (*Result, error) {
	return q.client.execute(ctx, q)
}

// Into executes the request and decodes the rows into dest.
func (q *Query) Into(ctx context.Context, dest interface{}) error {
	result, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	return result.Decode(dest)
}

// encode renders the query string with stable key order.
func (q *Query) encode() string {
	params := url.Values{}
	for k, v := range q.params {
		params[k] = append([]string(nil), v...)
	}
	if len(q.order) > 0 {
		params.Set("order", strings.Join(q.order, ","))
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range params[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// FormatValue renders a filter operand the way PostgREST expects it.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case decimal.Decimal:
		return v.String()
	case fmt.Stringer:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return "(" + strings.Join(quoted, ",") + ")"
}

// DefaultPageSize is the largest page requested per round trip.
const DefaultPageSize = 1000

// Paginate drains a query page by page. build must return a fresh query
// (filters and order included) on every call; Paginate sets offset and limit.
func Paginate[T any](ctx context.Context, pageSize int, build func() *Query) ([]T, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []T
	for offset := 0; ; offset += pageSize {
		var page []T
		if err := build().Offset(offset).Limit(pageSize).Into(ctx, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
