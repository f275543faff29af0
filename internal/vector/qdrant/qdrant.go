// Package qdrant implements the vector.Repository port on a Qdrant
// collection over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/weavenn/weave/internal/vector"
)

// Repository is a Qdrant-backed vector.Repository.
type Repository struct {
	conn       *grpc.ClientConn
	points     pb.PointsClient
	collection string
}

// New connects to Qdrant at host:port and targets the given collection.
func New(ctx context.Context, host string, port int, collection string) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Repository{
		conn:       conn,
		points:     pb.NewPointsClient(conn),
		collection: collection,
	}, nil
}

func (r *Repository) Upsert(ctx context.Context, docs []vector.Document) error {
	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		payload := map[string]*pb.Value{
			"note_id": {Kind: &pb.Value_StringValue{StringValue: d.NoteID}},
			"title":   {Kind: &pb.Value_StringValue{StringValue: d.Title}},
			"folder":  {Kind: &pb.Value_StringValue{StringValue: d.Folder}},
			"tags":    {Kind: &pb.Value_StringValue{StringValue: strings.Join(d.Tags, ",")}},
		}
		for k, v := range d.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: d.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Vector}}},
			Payload: payload,
		}
	}

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	return err
}

func (r *Repository) Search(ctx context.Context, vec []float32, limit int) ([]vector.SearchResult, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}

	results := make([]vector.SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		doc := vector.Document{ID: pt.Id.GetUuid(), Metadata: make(map[string]string)}
		for k, v := range pt.Payload {
			switch k {
			case "note_id":
				doc.NoteID = v.GetStringValue()
			case "title":
				doc.Title = v.GetStringValue()
			case "folder":
				doc.Folder = v.GetStringValue()
			case "tags":
				if s := v.GetStringValue(); s != "" {
					doc.Tags = strings.Split(s, ",")
				}
			default:
				doc.Metadata[k] = v.GetStringValue()
			}
		}
		results[i] = vector.SearchResult{Document: doc, Score: pt.Score}
	}
	return results, nil
}

// Ping verifies the collection is reachable, for health checks.
func (r *Repository) Ping(ctx context.Context) error {
	_, err := pb.NewCollectionsClient(r.conn).Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collection,
	})
	return err
}

func (r *Repository) Close(ctx context.Context) error {
	return r.conn.Close()
}

var _ vector.Repository = (*Repository)(nil)
