package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/reelsense/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultVectorDimension = 1024

	payloadContentID  = "content_id"
	payloadName       = "name"
	payloadCategory   = "category"
	payloadSource     = "source"
	payloadConfidence = "confidence"
	payloadContext    = "context"
)

// entityNamespace scopes deterministic point ids to this index.
var entityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("reelsense/entities"))

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// EntityIndex stores one vector per (content item, merged entity) in Qdrant.
type EntityIndex struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewEntityIndex connects to Qdrant. Local instances use an insecure channel;
// Qdrant Cloud (API key set) uses TLS 1.3 with the key sent as metadata.
func NewEntityIndex(cfg *QdrantConnectionConfig) (*EntityIndex, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &EntityIndex{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *EntityIndex) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist and checks the vector
// size of an existing one.
func (r *EntityIndex) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	_, err = r.pointsClient.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: r.collectionName,
		FieldName:      payloadContentID,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", payloadContentID, err)
	}
	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil && single.GetSize() > 0 {
		return single.GetSize(), true
	}
	for _, vectorParams := range vectors.GetParamsMap().GetMap() {
		if size := vectorParams.GetSize(); size > 0 {
			return size, true
		}
	}
	return 0, false
}

// EntityPoint is one entity of one content item, ready to index.
type EntityPoint struct {
	ContentID string
	Entity    domain.Entity
	Vector    []float32
}

// EntityHit is a search result.
type EntityHit struct {
	ContentID string        `json:"content_id"`
	Entity    domain.Entity `json:"entity"`
	Score     float32       `json:"score"`
}

// EntityFilter narrows a search. Empty fields are ignored.
type EntityFilter struct {
	Category  domain.EntityCategory
	ContentID string
}

// EntityPointID derives a stable point id from the content id and the entity's identity,
// so re-indexing a content item overwrites its points instead of duplicating them.
func EntityPointID(contentID string, e domain.Entity) string {
	key := e.Key()
	return uuid.NewSHA1(entityNamespace, []byte(contentID+"\x00"+key.Name+"\x00"+string(key.Category))).String()
}

// Upsert inserts or replaces points.
func (r *EntityIndex) Upsert(ctx context.Context, points []EntityPoint) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: EntityPointID(p.ContentID, p.Entity)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: entityPayload(p.ContentID, p.Entity),
		})
	}

	wait := true
	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search performs a vector similarity search
func (r *EntityIndex) Search(ctx context.Context, vector []float32, topK int, filter *EntityFilter) ([]EntityHit, error) {
	if topK <= 0 {
		topK = 10
	}
	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		Filter: buildEntityFilter(filter),
	}

	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]EntityHit, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		contentID, entity := parseEntityPayload(scored.GetPayload())
		hits = append(hits, EntityHit{ContentID: contentID, Entity: entity, Score: scored.GetScore()})
	}
	return hits, nil
}

// DeleteByContentID removes every point of a content item.
func (r *EntityIndex) DeleteByContentID(ctx context.Context, contentID string) error {
	wait := true
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: buildEntityFilter(&EntityFilter{ContentID: contentID}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points of %s: %w", contentID, err)
	}
	return nil
}

func entityPayload(contentID string, e domain.Entity) map[string]*pb.Value {
	return map[string]*pb.Value{
		payloadContentID:  stringValue(contentID),
		payloadName:       stringValue(e.Name),
		payloadCategory:   stringValue(string(e.Category)),
		payloadSource:     stringValue(string(e.Source)),
		payloadConfidence: {Kind: &pb.Value_DoubleValue{DoubleValue: e.Confidence}},
		payloadContext:    stringValue(e.Context),
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func parseEntityPayload(payload map[string]*pb.Value) (string, domain.Entity) {
	e := domain.Entity{
		Name:       payload[payloadName].GetStringValue(),
		Category:   domain.EntityCategory(payload[payloadCategory].GetStringValue()),
		Source:     domain.EntitySource(payload[payloadSource].GetStringValue()),
		Confidence: payload[payloadConfidence].GetDoubleValue(),
		Context:    payload[payloadContext].GetStringValue(),
	}
	return payload[payloadContentID].GetStringValue(), e
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func buildEntityFilter(filter *EntityFilter) *pb.Filter {
	if filter == nil {
		return nil
	}
	var conditions []*pb.Condition
	if filter.Category != "" {
		conditions = append(conditions, keywordCondition(payloadCategory, strings.ToUpper(string(filter.Category))))
	}
	if filter.ContentID != "" {
		conditions = append(conditions, keywordCondition(payloadContentID, filter.ContentID))
	}
	if len(conditions) == 0 {
		return nil
	}
	return &pb.Filter{Must: conditions}
}
