package testutil

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
)

// Random generates book records, partial updates and predicates from a
// fixed seed. Values are drawn from small domains so that equality and
// range predicates hit often.
type Random struct {
	rng   *rand.Rand
	clock *DeterministicClock
	times []time.Time
}

var (
	titles = []string{"Dune", "Emma", "Ulysses", "Beloved", "Solaris", "Ubik", "Kindred", "Lolita"}
	words  = []string{"scifi", "classic", "poetry", "war", "space", "noir"}
)

// NewRandom returns a generator seeded with seed.
func NewRandom(seed uint64) *Random {
	r := &Random{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		clock: NewDeterministicClock(24 * time.Hour),
	}
	for range 6 {
		r.times = append(r.times, r.clock.Next())
	}
	return r
}

// Intn returns a uniform int in [0, n).
func (r *Random) Intn(n int) int { return r.rng.IntN(n) }

// ID picks one of n identifiers "r00".."r{n-1}".
func (r *Random) ID(n int) ir.ID {
	return ir.ID(fmt.Sprintf("r%02d", r.rng.IntN(n)))
}

// Record returns a valid book record. Optional fields are absent or null
// some of the time.
func (r *Random) Record(id ir.ID) ir.Object {
	rec := ir.Object{
		"title": r.title(),
		"year":  r.year(),
	}
	if id != "" {
		rec[ir.IDField] = ir.String(id)
	}
	r.maybe(rec, "rating", r.rating)
	r.maybe(rec, "published", r.published)
	r.maybe(rec, "instock", r.instock)
	r.maybe(rec, "tags", r.tags)
	r.maybe(rec, "meta", r.meta)
	return rec
}

// Changes returns a partial update touching one to three fields.
func (r *Random) Changes() ir.Object {
	out := ir.Object{}
	for range 1 + r.rng.IntN(3) {
		switch r.rng.IntN(7) {
		case 0:
			out["title"] = r.title()
		case 1:
			out["year"] = r.year()
		case 2:
			out["rating"] = r.nullable(r.rating)
		case 3:
			out["published"] = r.nullable(r.published)
		case 4:
			out["instock"] = r.nullable(r.instock)
		case 5:
			out["tags"] = r.tags()
		default:
			out["meta"] = r.nullable(r.meta)
		}
	}
	return out
}

// Predicate returns a valid predicate over the book schema, nested at most
// depth combinators deep.
func (r *Random) Predicate(depth int) query.Predicate {
	if depth > 0 && r.rng.IntN(3) == 0 {
		left, right := r.Predicate(depth-1), r.Predicate(depth-1)
		if r.rng.IntN(2) == 0 {
			return query.And(left, right)
		}
		return query.Or(left, right)
	}
	return r.comparison()
}

func (r *Random) comparison() query.Predicate {
	if r.rng.IntN(8) == 0 {
		if r.rng.IntN(2) == 0 {
			return query.Contains("tags", ir.String(words[r.rng.IntN(len(words))]))
		}
		return query.Contains("meta", ir.String([]string{"pages", "series", "isbn"}[r.rng.IntN(3)]))
	}

	field, value := r.operand()
	switch r.rng.IntN(8) {
	case 0:
		return query.Eq(field, value)
	case 1:
		return query.Neq(field, value)
	case 2:
		return query.Lt(field, r.nonNull(field, value))
	case 3:
		return query.Lte(field, r.nonNull(field, value))
	case 4:
		return query.Gt(field, r.nonNull(field, value))
	case 5:
		return query.Gte(field, r.nonNull(field, value))
	case 6:
		_, other := r.operandFor(field)
		return query.In(field, value, other)
	default:
		_, other := r.operandFor(field)
		return query.NotIn(field, value, other)
	}
}

func (r *Random) operand() (string, ir.Value) {
	fields := []string{ir.IDField, "title", "year", "rating", "published", "instock"}
	return r.operandFor(fields[r.rng.IntN(len(fields))])
}

func (r *Random) operandFor(field string) (string, ir.Value) {
	if field != ir.IDField && field != "title" && field != "year" && r.rng.IntN(6) == 0 {
		return field, ir.Null{}
	}
	switch field {
	case ir.IDField:
		return field, ir.String(r.ID(20))
	case "title":
		return field, r.title()
	case "year":
		return field, r.year()
	case "rating":
		return field, r.rating()
	case "published":
		return field, r.published()
	default:
		return field, r.instock()
	}
}

func (r *Random) nonNull(field string, v ir.Value) ir.Value {
	for ir.IsNull(v) {
		_, v = r.operandFor(field)
	}
	return v
}

func (r *Random) maybe(rec ir.Object, field string, gen func() ir.Value) {
	switch r.rng.IntN(4) {
	case 0:
	case 1:
		rec[field] = ir.Null{}
	default:
		rec[field] = gen()
	}
}

func (r *Random) nullable(gen func() ir.Value) ir.Value {
	if r.rng.IntN(4) == 0 {
		return ir.Null{}
	}
	return gen()
}

func (r *Random) title() ir.Value { return ir.String(titles[r.rng.IntN(len(titles))]) }
func (r *Random) year() ir.Value  { return ir.Int(1990 + r.rng.IntN(12)) }
func (r *Random) rating() ir.Value {
	return ir.Float(float64(r.rng.IntN(11)) / 2)
}
func (r *Random) published() ir.Value { return ir.NewTime(r.times[r.rng.IntN(len(r.times))]) }
func (r *Random) instock() ir.Value   { return ir.Bool(r.rng.IntN(2) == 0) }

func (r *Random) tags() ir.Value {
	n := r.rng.IntN(3)
	out := make(ir.List, n)
	for i := range out {
		out[i] = ir.String(words[r.rng.IntN(len(words))])
	}
	return out
}

func (r *Random) meta() ir.Value {
	out := ir.Object{}
	if r.rng.IntN(2) == 0 {
		out["pages"] = ir.Int(100 + r.rng.IntN(500))
	}
	if r.rng.IntN(2) == 0 {
		out["series"] = ir.Null{}
	}
	return out
}
