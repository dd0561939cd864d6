package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrc-ide/outpack-go/pkg/index"
	"github.com/mrc-ide/outpack-go/pkg/metadata"
	"github.com/mrc-ide/outpack-go/pkg/query"
)

// fixtureIndex models the four packets from the shared example fixture,
// already in index order: the two 2017 queries packets, the params packet,
// then the 2018 queries packet (the latest).
func fixtureIndex() index.Index {
	return index.Index{Packets: []metadata.Packet{
		{ID: "20170818-164830-33e0ab01", Name: "modup-201707-queries1"},
		{ID: "20170818-164847-7574883b", Name: "modup-201707-queries1"},
		{
			ID:   "20180220-095832-16a4bbed",
			Name: "modup-201707-params1",
			Parameters: map[string]any{
				"tolerance": 0.001,
				"size":      10.0,
				"disease":   "YF",
				"pull_data": true,
			},
		},
		{ID: "20180818-164043-7cdcde4b", Name: "modup-201707-queries1"},
	}}
}

func ids(packets []metadata.Packet) []string {
	out := make([]string, len(packets))
	for i, p := range packets {
		out[i] = p.ID
	}

	return out
}

func TestPreparseSugar(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "latest()", query.Preparse("latest"))
	assert.Equal(t, "latest()", query.Preparse("latest()"))
	assert.Equal(t, `latest(name == "foo")`, query.Preparse(`latest(name == "foo")`))
	assert.Equal(t, `id == "123"`, query.Preparse(`"123"`))
	assert.Equal(t, `name == "foo"`, query.Preparse(`name == "foo"`))
}

func TestParseBasicTests(t *testing.T) {
	t.Parallel()

	node, err := query.Parse(`id == "123"`)
	require.NoError(t, err)

	idx := fixtureIndex()
	result, err := query.Eval(idx, node)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestParseAndEvalScenarios(t *testing.T) {
	t.Parallel()

	idx := fixtureIndex()

	cases := []struct {
		name     string
		query    string
		wantIDs  []string
		wantText string
	}{
		{
			name:     "latest",
			query:    "latest",
			wantIDs:  []string{"20180818-164043-7cdcde4b"},
			wantText: "20180818-164043-7cdcde4b",
		},
		{
			name:  "name equality",
			query: `name == "modup-201707-queries1"`,
			wantIDs: []string{
				"20170818-164830-33e0ab01",
				"20170818-164847-7574883b",
				"20180818-164043-7cdcde4b",
			},
		},
		{
			name:    "parameter bool equality",
			query:   "parameter:pull_data == true",
			wantIDs: []string{"20180220-095832-16a4bbed"},
		},
		{
			name:     "parameter less than numeric",
			query:    "parameter:size < 10",
			wantIDs:  []string{},
			wantText: "Found no packets",
		},
		{
			name:  "negated latest",
			query: "!latest()",
			wantIDs: []string{
				"20170818-164830-33e0ab01",
				"20170818-164847-7574883b",
				"20180220-095832-16a4bbed",
			},
		},
		{
			name:    "single of latest",
			query:   "single(latest())",
			wantIDs: []string{"20180818-164043-7cdcde4b"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			node, err := query.Parse(tc.query)
			require.NoError(t, err)

			result, err := query.Eval(idx, node)
			require.NoError(t, err)
			assert.Equal(t, tc.wantIDs, ids(result))

			if tc.wantText != "" {
				assert.Equal(t, tc.wantText, query.Format(result))
			}
		})
	}
}

func TestSingleOfNegatedLatestIsEvalError(t *testing.T) {
	t.Parallel()

	idx := fixtureIndex()

	node, err := query.Parse("single(!latest())")
	require.NoError(t, err)

	_, err = query.Eval(idx, node)
	require.ErrorIs(t, err, query.ErrEval)
	assert.Contains(t, err.Error(), "Query found 3 packets, but expected exactly one")
}

func TestNegationIsInvolutive(t *testing.T) {
	t.Parallel()

	idx := fixtureIndex()

	node, err := query.Parse("!(!latest())")
	require.NoError(t, err)

	result, err := query.Eval(idx, node)
	require.NoError(t, err)
	assert.Equal(t, []string{"20180818-164043-7cdcde4b"}, ids(result))
}

func TestBooleanOperators(t *testing.T) {
	t.Parallel()

	idx := fixtureIndex()

	node, err := query.Parse(`latest() || name == "modup-201707-params1"`)
	require.NoError(t, err)

	result, err := query.Eval(idx, node)
	require.NoError(t, err)
	assert.Equal(t, []string{"20180220-095832-16a4bbed", "20180818-164043-7cdcde4b"}, ids(result))

	node, err = query.Parse(`!latest() && name == "modup-201707-params1"`)
	require.NoError(t, err)

	result, err = query.Eval(idx, node)
	require.NoError(t, err)
	assert.Equal(t, []string{"20180220-095832-16a4bbed"}, ids(result))
}

func TestNoTypeCoercion(t *testing.T) {
	t.Parallel()

	idx := fixtureIndex()

	cases := []string{
		`parameter:pull_data == "TRUE"`,
		`parameter:pull_data == "true"`,
		`parameter:pull_data == 1`,
		`parameter:disease == 0.5`,
	}

	for _, q := range cases {
		node, err := query.Parse(q)
		require.NoError(t, err)

		result, err := query.Eval(idx, node)
		require.NoError(t, err)
		assert.Empty(t, result, q)
	}
}

func TestComparingStringWithOrderingOperatorsIsEmpty(t *testing.T) {
	t.Parallel()

	idx := fixtureIndex()

	for _, op := range []string{"<", "<=", ">", ">="} {
		node, err := query.Parse(`parameter:disease ` + op + ` "YF"`)
		require.NoError(t, err)

		result, err := query.Eval(idx, node)
		require.NoError(t, err)
		assert.Empty(t, result, op)
	}
}

func TestParenthesesAndPrecedence(t *testing.T) {
	t.Parallel()

	idx := fixtureIndex()

	node, err := query.Parse(`(id == "20170818-164830-33e0ab01" || id == "20170818-164847-7574883b") && name == "modup-201707-queries1"`)
	require.NoError(t, err)

	result, err := query.Eval(idx, node)
	require.NoError(t, err)
	assert.Equal(t, []string{"20170818-164830-33e0ab01", "20170818-164847-7574883b"}, ids(result))
}

func TestParseRejectsUnknownInfixOperator(t *testing.T) {
	t.Parallel()

	_, err := query.Parse(`name =! "123"`)
	require.ErrorIs(t, err, query.ErrSyntax)
}

func TestParseRejectsBareLatestWithArgument(t *testing.T) {
	t.Parallel()

	_, err := query.Parse(`latest("123")`)
	require.Error(t, err)
}

func TestLatestOnEmptyIndexIsEmpty(t *testing.T) {
	t.Parallel()

	node, err := query.Parse("latest()")
	require.NoError(t, err)

	result, err := query.Eval(index.Index{}, node)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, "Found no packets", query.Format(result))
}
