package server

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/ipc"

	"github.com/unum-cloud/ukvdb/pkg/engine"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := engine.Open(engine.Config{})
	require.NoError(t, err)
	return NewServer(db)
}

func encodeWriteBody(t *testing.T, keys []int64, values [][]byte) []byte {
	t.Helper()
	keyBuilder := array.NewInt64Builder(alloc)
	defer keyBuilder.Release()
	valBuilder := array.NewBinaryBuilder(alloc, arrow.BinaryTypes.Binary)
	defer valBuilder.Release()
	for i, k := range keys {
		keyBuilder.Append(k)
		if values[i] == nil {
			valBuilder.AppendNull()
		} else {
			valBuilder.Append(values[i])
		}
	}
	keyArr := keyBuilder.NewArray()
	defer keyArr.Release()
	valArr := valBuilder.NewArray()
	defer valArr.Release()
	rec := array.NewRecord(keyValueSchema, []arrow.Array{keyArr, valArr}, int64(len(keys)))
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(keyValueSchema), ipc.WithAllocator(alloc))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func encodeReadBody(t *testing.T, keys []int64) []byte {
	t.Helper()
	keyBuilder := array.NewInt64Builder(alloc)
	defer keyBuilder.Release()
	for _, k := range keys {
		keyBuilder.Append(k)
	}
	keyArr := keyBuilder.NewArray()
	defer keyArr.Release()
	rec := array.NewRecord(keySchema, []arrow.Array{keyArr}, int64(len(keys)))
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(keySchema), ipc.WithAllocator(alloc))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	s := newTestServer(t)

	writeReq := httptest.NewRequest("POST", "/v1/write", bytes.NewReader(encodeWriteBody(t, []int64{1}, [][]byte{[]byte("hello")})))
	writeRec := httptest.NewRecorder()
	s.router.ServeHTTP(writeRec, writeReq)
	require.Equal(t, 200, writeRec.Code)

	readReq := httptest.NewRequest("POST", "/v1/read", bytes.NewReader(encodeReadBody(t, []int64{1, 2})))
	readRec := httptest.NewRecorder()
	s.router.ServeHTTP(readRec, readReq)
	require.Equal(t, 200, readRec.Code)

	keys, values, err := decodeKeyValueBatch(readRec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, []byte("hello"), values[0])
	assert.Nil(t, values[1])
}

func TestBeginAndCommitTransactionRoundTrip(t *testing.T) {
	s := newTestServer(t)

	beginRec := httptest.NewRecorder()
	s.router.ServeHTTP(beginRec, httptest.NewRequest("POST", "/v1/begin_transaction", nil))
	require.Equal(t, 200, beginRec.Code)

	var begun map[string]any
	require.NoError(t, json.Unmarshal(beginRec.Body.Bytes(), &begun))
	txnID := strconv.FormatInt(int64(begun["transaction"].(float64)), 10)

	commitRec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/commit_transaction?transaction="+txnID, nil)
	s.router.ServeHTTP(commitRec, req)
	require.Equal(t, 200, commitRec.Code)
}

func TestListCollectionsIncludesMain(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/list_collections", nil))
	require.Equal(t, 200, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "collections")
}
