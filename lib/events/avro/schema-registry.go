package avro

import (
	"sync"

	schemaregistry "github.com/Landoop/schema-registry"
	lru "github.com/hashicorp/golang-lru"
	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Registry maps schemas to the ids written in front of every confluent encoded record.
type Registry interface {
	// Register the schema for the given subject and return its id.
	Register(subject string, schema *Schema) (uint32, error)

	// Codec looks up the codec for a schema id.
	Codec(id uint32) (*goavro.Codec, error)
}

type subjectSchema struct {
	subject string
	schema  string
}

// SchemaRegistry is a Registry backed by the confluent schema registry.
type SchemaRegistry struct {
	log    *logrus.Entry
	client *schemaregistry.Client

	idsMu sync.Mutex
	ids   map[subjectSchema]uint32

	codecs *lru.Cache
}

func NewSchemaRegistry(client *schemaregistry.Client) *SchemaRegistry {
	codecs, err := lru.New(256)
	if err != nil {
		// only fails for a non positive size
		panic(err)
	}

	return &SchemaRegistry{
		log:    logrus.WithField("prefix", "schema"),
		client: client,
		ids:    map[subjectSchema]uint32{},
		codecs: codecs,
	}
}

func (r *SchemaRegistry) Register(subject string, schema *Schema) (uint32, error) {
	key := subjectSchema{subject, schema.String()}

	// lookup in cache first
	r.idsMu.Lock()
	cached, ok := r.ids[key]
	r.idsMu.Unlock()

	if ok {
		return cached, nil
	}

	r.log.Debugf("Registering schema for subject %s", subject)

	schemaId, err := r.client.RegisterNewSchema(subject, schema.String())
	if err != nil {
		return 0, errors.WithMessagef(err, "register schema for subject %s", subject)
	}

	r.idsMu.Lock()
	r.ids[key] = uint32(schemaId)
	r.idsMu.Unlock()

	// we know the codec of our own schemas already
	r.codecs.Add(uint32(schemaId), schema.Codec())

	return uint32(schemaId), nil
}

func (r *SchemaRegistry) Codec(id uint32) (*goavro.Codec, error) {
	if codec, ok := r.codecs.Get(id); ok {
		return codec.(*goavro.Codec), nil
	}

	r.log.Infof("Lookup schema for id=%d", id)

	avroSchema, err := r.client.GetSchemaByID(int(id))
	if err != nil {
		return nil, errors.WithMessagef(err, "lookup schema in confluent %d", id)
	}

	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return nil, errors.WithMessage(err, "parse schema to codec")
	}

	r.codecs.Add(id, codec)

	return codec, nil
}

// MemoryRegistry keeps all schemas in memory. Ids are only valid within the
// process, use it for tests and local runs without a schema registry.
type MemoryRegistry struct {
	mu      sync.Mutex
	ids     map[subjectSchema]uint32
	schemas map[uint32]*goavro.Codec
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		ids:     map[subjectSchema]uint32{},
		schemas: map[uint32]*goavro.Codec{},
	}
}

func (r *MemoryRegistry) Register(subject string, schema *Schema) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := subjectSchema{subject, schema.String()}
	if id, ok := r.ids[key]; ok {
		return id, nil
	}

	id := uint32(len(r.ids) + 1)
	r.ids[key] = id
	r.schemas[id] = schema.Codec()

	return id, nil
}

func (r *MemoryRegistry) Codec(id uint32) (*goavro.Codec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	codec, ok := r.schemas[id]
	if !ok {
		return nil, errors.Errorf("no schema found for id %d", id)
	}

	return codec, nil
}
