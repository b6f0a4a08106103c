package rowstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/pkg/errors"
)

// RestStore PostgREST 风格的托管后端（/rest/v1/<table>）
type RestStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRestStore client 为空时使用 10 秒超时的默认客户端
func NewRestStore(baseURL, apiKey string, client *http.Client) *RestStore {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RestStore{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

// restError PostgREST 错误体
type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e restError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

func (s *RestStore) endpoint(table string, params url.Values) string {
	u := s.baseURL + "/rest/v1/" + table
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (s *RestStore) Fetch(ctx context.Context, q Query) ([]models.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("select", "*")
	for _, f := range q.Filters {
		params.Add(f.Column, restFilter(f))
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Descending {
			dir = "desc"
		}
		params.Set("order", q.OrderBy+"."+dir)
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	var rows []models.Row
	if err := s.do(ctx, http.MethodGet, s.endpoint(q.Table, params), nil, q.Table, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *RestStore) Update(ctx context.Context, table, id string, patch models.Row) (models.Row, error) {
	if err := checkIdent("table", table); err != nil {
		return nil, err
	}
	body := patch.Clone()
	delete(body, "id")
	params := url.Values{}
	params.Set("id", "eq."+id)
	var rows []models.Row
	if err := s.do(ctx, http.MethodPatch, s.endpoint(table, params), body, table, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(table, id)
	}
	return rows[0], nil
}

func (s *RestStore) Insert(ctx context.Context, table string, row models.Row) (models.Row, error) {
	if err := checkIdent("table", table); err != nil {
		return nil, err
	}
	var rows []models.Row
	if err := s.do(ctx, http.MethodPost, s.endpoint(table, nil), row, table, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return row, nil
	}
	return rows[0], nil
}

func (s *RestStore) do(ctx context.Context, method, u string, body any, table string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.CodeInvalidArgument, "encode body")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidArgument, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return transient(err, table)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transient(err, table)
	}

	if resp.StatusCode >= 400 {
		var re restError
		if json.Unmarshal(data, &re) != nil || re.Message == "" {
			re.Message = fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		switch re.Code {
		case "42703", "PGRST204":
			col, _ := MissingColumn(re.Message)
			return schemaMismatch(re, table, col)
		case "42P01", "PGRST205":
			return schemaMismatch(re, table, "")
		}
		return transient(re, table)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return transient(err, table)
	}
	return nil
}

func restFilter(f Filter) string {
	switch f.Op {
	case OpIn:
		parts := make([]string, 0)
		for _, v := range toSlice(f.Value) {
			parts = append(parts, restValue(v))
		}
		return "in.(" + strings.Join(parts, ",") + ")"
	case OpGte:
		return "gte." + restValue(f.Value)
	case OpLte:
		return "lte." + restValue(f.Value)
	case OpILike:
		return "ilike.*" + restValue(f.Value) + "*"
	}
	return "eq." + restValue(f.Value)
}

func restValue(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
