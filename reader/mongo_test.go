package reader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestDocumentRecord(t *testing.T) {
	id := bson.NewObjectID()
	when := time.Date(2023, 3, 14, 9, 30, 0, 0, time.UTC)
	price, err := bson.ParseDecimal128("10.25")
	require.NoError(t, err)

	doc := bson.D{
		{Key: "_id", Value: id},
		{Key: "Airline", Value: "SQ"},
		{Key: "Rating", Value: int32(4)},
		{Key: "Price", Value: price},
		{Key: "ReviewDate", Value: bson.NewDateTimeFromTime(when)},
		{Key: "Recommended", Value: true},
		{Key: "Missing", Value: bson.Null{}},
		{Key: "Tags", Value: bson.A{"food", int64(2), bson.Null{}}},
		{Key: "Seat", Value: bson.D{{Key: "row", Value: int32(12)}}},
	}

	rec := documentRecord(doc)

	assert.Equal(t, []string{"_id", "Airline", "Rating", "Price", "ReviewDate", "Recommended", "Missing", "Tags", "Seat"}, rec.Fields())
	assert.Equal(t, id.Hex(), rec.Get("_id"))
	assert.Equal(t, "SQ", rec.Get("Airline"))
	assert.Equal(t, int64(4), rec.Get("Rating"))
	assert.Equal(t, 10.25, rec.Get("Price"))
	assert.Equal(t, when, rec.Get("ReviewDate"))
	assert.Equal(t, true, rec.Get("Recommended"))
	assert.Nil(t, rec.Get("Missing"))
	assert.True(t, rec.Has("Missing"))
	assert.Equal(t, []any{"food", int64(2), nil}, rec.Get("Tags"))
	assert.JSONEq(t, `{"row": 12}`, rec.Get("Seat").(string))
}

func TestBSONValue_Scalars(t *testing.T) {
	assert.Nil(t, bsonValue(nil))
	assert.Nil(t, bsonValue(bson.Undefined{}))
	assert.Equal(t, "^SQ", bsonValue(bson.Regex{Pattern: "^SQ", Options: "i"}))
	assert.Equal(t, "sym", bsonValue(bson.Symbol("sym")))
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), bsonValue(bson.Timestamp{T: 1700000000, I: 1}))
	assert.Equal(t, 1.5, bsonValue(1.5))
}

func TestOpenMongo_RequiresDatabase(t *testing.T) {
	_, err := OpenMongo(t.Context(), "mongodb://localhost:27017", "", nil)
	assert.ErrorContains(t, err, "database name")
}
