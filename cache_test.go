package lrucache

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gneu77/lru-cache/events"
	"github.com/gneu77/lru-cache/store"
)

var _ = Describe("Cache", func() {
	const vt = "user"
	var (
		r    *Registry
		c    *Cache[string, string]
		conf Config
	)
	BeforeEach(func() {
		resetTestKeys()
		r = testRegistry()
		conf = Config{ValueType: vt, MaxSize: 3}
	})
	AfterEach(func() {
		r.Close()
	})
	JustBeforeEach(func() {
		var err error
		c, err = New[string, string](r, nil, conf)
		Expect(err).NotTo(HaveOccurred())
	})

	valueOf := func(key string) string { return "value_of_" + key }
	Put := func(n int) (keys []string) {
		for i := 0; i < n; i++ {
			k := testKey()
			keys = append(keys, k)
			Expect(c.Set(k, valueOf(k))).To(Succeed())
		}
		return
	}
	ExpectHit := func(key, want string) {
		val, ok := c.Get(key)
		ExpectWithOffset(1, ok).To(BeTrue())
		ExpectWithOffset(1, val).To(Equal(want))
	}

	Context("construction", func() {
		It("requires a value type", func() {
			_, err := New[string, string](r, nil, Config{})
			Expect(IsValidation(err)).To(BeTrue())
			Expect(Is(err, ErrValueTypeRequired)).To(BeTrue())
		})

		It("rejects negative sizes", func() {
			_, err := New[string, string](r, nil, Config{ValueType: "x", MaxSize: -1})
			Expect(Is(err, ErrNegativeSize)).To(BeTrue())
		})

		It("rejects duplicate namespaces", func() {
			_, err := New[string, string](r, nil, Config{ValueType: vt})
			Expect(Is(err, ErrNamespaceTaken)).To(BeTrue())
		})

		Context("with size zero", func() {
			BeforeEach(func() {
				conf.MaxSize = 0
			})
			It("inherits the registry default", func() {
				Expect(c.MaxSize()).To(Equal(DefaultMaxSize))
			})
		})

		It("names its namespace", func() {
			Expect(c.ValueType()).To(Equal(vt))
		})
	})

	Context("set and get", func() {
		It("stores and returns values", func() {
			keys := Put(2)
			ExpectHit(keys[0], valueOf(keys[0]))
			ExpectHit(keys[1], valueOf(keys[1]))
			Expect(c.Len()).To(Equal(2))
		})

		It("misses unknown keys", func() {
			_, ok := c.Get(testKey())
			Expect(ok).To(BeFalse())
		})

		It("updates in place", func() {
			keys := Put(1)
			Expect(c.Set(keys[0], "updated")).To(Succeed())
			Expect(c.Len()).To(Equal(1))
			ExpectHit(keys[0], "updated")
		})

		It("peek and has do not promote", func() {
			keys := Put(3)
			val, ok := c.Peek(keys[0])
			Expect(ok).To(BeTrue())
			Expect(val).To(Equal(valueOf(keys[0])))
			Expect(c.Has(keys[0])).To(BeTrue())
			Put(1)
			Expect(c.Has(keys[0])).To(BeFalse(), "oldest must still be evicted first")
		})

		It("get promotes", func() {
			keys := Put(3)
			ExpectHit(keys[0], valueOf(keys[0]))
			Put(1)
			Expect(c.Has(keys[0])).To(BeTrue())
			Expect(c.Has(keys[1])).To(BeFalse())
		})
	})

	Context("alternate keys", func() {
		It("hit get, peek and has", func() {
			Expect(c.Set("p", "v", "a1", "a2")).To(Succeed())
			ExpectHit("a1", "v")
			val, ok := c.Peek("a2")
			Expect(ok).To(BeTrue())
			Expect(val).To(Equal("v"))
			Expect(c.Has("a2")).To(BeTrue())
			Expect(c.Len()).To(Equal(1))
		})

		It("get through an alternate key promotes", func() {
			Expect(c.Set("p", "v", "a")).To(Succeed())
			keys := Put(2)
			ExpectHit("a", "v")
			Put(1)
			Expect(c.Has("p")).To(BeTrue(), "the hit through the alternate key must refresh the entry")
			Expect(c.Has(keys[0])).To(BeFalse(), "the next oldest goes instead")
			ExpectHit("a", "v")
		})

		It("updates union the alternate key set", func() {
			Expect(c.Set("p", "v1", "a1")).To(Succeed())
			Expect(c.Set("p", "v2", "a2")).To(Succeed())
			ExpectHit("a1", "v2")
			ExpectHit("a2", "v2")
		})

		It("refuses binding an alternate key twice", func() {
			Expect(c.Set("p1", "v1", "shared")).To(Succeed())
			err := c.Set("p2", "v2", "shared")
			Expect(IsConflict(err)).To(BeTrue())
			conflict := ConflictOf(err)
			Expect(conflict).NotTo(BeNil())
			Expect(conflict.AltKey).To(Equal("shared"))
			Expect(conflict.BoundTo).To(Equal("p1"))
			Expect(conflict.Requested).To(Equal("p2"))
			Expect(c.Has("p2")).To(BeFalse(), "conflicting set must change nothing")
			ExpectHit("shared", "v1")
		})

		It("lets the owner rebind freely", func() {
			Expect(c.Set("p", "v1", "a")).To(Succeed())
			Expect(c.Set("p", "v2", "a")).To(Succeed())
			ExpectHit("a", "v2")
		})

		It("primary keys shadow equal alternate keys", func() {
			Expect(c.Set("x", "primary value")).To(Succeed())
			Expect(c.Set("p", "other", "x")).To(Succeed())
			ExpectHit("x", "primary value")
		})

		It("delete frees the alternate keys", func() {
			Expect(c.Set("p1", "v1", "a")).To(Succeed())
			existed, err := c.Delete("p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeTrue())
			Expect(c.Has("a")).To(BeFalse())
			Expect(c.Set("p2", "v2", "a")).To(Succeed())
			ExpectHit("a", "v2")
		})

		It("eviction frees the alternate keys", func() {
			Expect(c.Set("p1", "v1", "a")).To(Succeed())
			Put(3)
			Expect(c.Has("p1")).To(BeFalse())
			Expect(c.Set("p2", "v2", "a")).To(Succeed())
			ExpectHit("a", "v2")
		})
	})

	Context("delete", func() {
		It("removes by primary key", func() {
			keys := Put(2)
			existed, err := c.Delete(keys[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeTrue())
			Expect(c.Has(keys[0])).To(BeFalse())
			Expect(c.Len()).To(Equal(1))
		})

		It("removes by alternate key", func() {
			Expect(c.Set("p", "v", "a")).To(Succeed())
			existed, err := c.Delete("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeTrue())
			Expect(c.Has("p")).To(BeFalse())
		})

		It("reports absent keys", func() {
			existed, err := c.Delete(testKey())
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeFalse())
		})
	})

	Context("clear", func() {
		It("empties entries, alternate keys and all", func() {
			Expect(c.Set("p", "v", "a")).To(Succeed())
			Put(2)
			Expect(c.Clear()).To(Succeed())
			Expect(c.Len()).To(BeZero())
			Expect(c.Has("p")).To(BeFalse())
			Expect(c.Has("a")).To(BeFalse())
			Expect(c.Set("other", "v2", "a")).To(Succeed(), "alternate keys must be free again")
		})
	})

	Context("resize", func() {
		It("shrink evicts oldest first", func() {
			keys := Put(3)
			Expect(c.SetMaxSize(1)).To(Succeed())
			Expect(c.MaxSize()).To(Equal(1))
			Expect(c.Keys()).To(Equal([]string{keys[2]}))
		})

		It("rejects negative bounds", func() {
			Put(1)
			err := c.SetMaxSize(-1)
			Expect(Is(err, ErrNegativeSize)).To(BeTrue())
			Expect(c.MaxSize()).To(Equal(3))
		})

		It("zero keeps the cache empty", func() {
			Put(2)
			Expect(c.SetMaxSize(0)).To(Succeed())
			Expect(c.Len()).To(BeZero())
			Expect(c.Set("k", "v")).To(Succeed())
			Expect(c.Len()).To(BeZero(), "insert must evict itself")
		})
	})

	Context("keys and range", func() {
		It("iterates oldest first", func() {
			keys := Put(3)
			ExpectHit(keys[0], valueOf(keys[0]))
			Expect(c.Keys()).To(Equal([]string{keys[1], keys[2], keys[0]}))
			var seen []string
			c.Range(func(key, value string) bool {
				Expect(value).To(Equal(valueOf(key)))
				seen = append(seen, key)
				return true
			})
			Expect(seen).To(Equal([]string{keys[1], keys[2], keys[0]}))
		})

		It("range stops on false", func() {
			Put(3)
			var visited int
			c.Range(func(string, string) bool {
				visited++
				return false
			})
			Expect(visited).To(Equal(1))
		})
	})

	Context("set all", func() {
		Entries := func(keys ...string) (es []store.Entry[string, string]) {
			for _, k := range keys {
				es = append(es, store.Entry[string, string]{Key: k, Value: valueOf(k)})
			}
			return
		}

		It("applies every entry", func() {
			Expect(c.SetAll(Entries("k1", "k2", "k3"))).To(Succeed())
			Expect(c.Keys()).To(Equal([]string{"k1", "k2", "k3"}))
		})

		It("skips conflicting entries only", func() {
			Expect(c.Set("p1", "v", "shared")).To(Succeed())
			es := Entries("k1", "k2")
			es[0].AltKeys = []string{"shared"}
			err := c.SetAll(es)
			Expect(IsConflict(err)).To(BeTrue())
			Expect(c.Has("k1")).To(BeFalse())
			ExpectHit("k2", valueOf("k2"))
		})

		It("aggregates several conflicts", func() {
			Expect(c.Set("p1", "v", "a1", "a2")).To(Succeed())
			es := Entries("k1", "k2", "k3")
			es[0].AltKeys = []string{"a1"}
			es[2].AltKeys = []string{"a2"}
			err := c.SetAll(es)
			Expect(multierr.Errors(err)).To(HaveLen(2))
			ExpectHit("k2", valueOf("k2"))
		})

		It("flushes the batch as one record", func() {
			recs := collectRecords(r, vt)
			Expect(c.SetAll(Entries("k1", "k2", "k3"))).To(Succeed())
			Expect(*recs).To(HaveLen(1))
			Expect((*recs)[0][vt].Inserts).To(HaveLen(3))
		})
	})

	Context("change records", func() {
		var recs *[]events.Record
		JustBeforeEach(func() {
			recs = collectRecords(r, vt)
		})

		It("insert facts carry the whole entry", func() {
			Expect(c.Set("p", "v", "a1", "a2")).To(Succeed())
			Expect(*recs).To(HaveLen(1))
			ins := (*recs)[0][vt].Inserts
			Expect(ins).To(HaveLen(1))
			Expect(ins[0].Key).To(Equal("p"))
			Expect(ins[0].Value).To(Equal("v"))
			Expect(ins[0].AltKeys).To(ConsistOf("a1", "a2"))
		})

		It("updates keep the unioned alternate keys", func() {
			Expect(c.Set("p", "v1", "a1")).To(Succeed())
			Expect(c.Set("p", "v2", "a2")).To(Succeed())
			ins := (*recs)[1][vt].Inserts
			Expect(ins[0].Value).To(Equal("v2"))
			Expect(ins[0].AltKeys).To(ConsistOf("a1", "a2"))
		})

		It("evictions are recorded after their insert", func() {
			keys := Put(3)
			k := testKey()
			Expect(c.Set(k, valueOf(k))).To(Succeed())
			Expect(*recs).To(HaveLen(4))
			last := (*recs)[3][vt]
			Expect(last.Inserts).To(HaveLen(1))
			Expect(last.LRURemoves).To(HaveLen(1))
			Expect(last.LRURemoves[0].Key).To(Equal(keys[0]))
			Expect(last.LRURemoves[0].Order).To(BeNumerically(">", last.Inserts[0].Order))
		})

		It("batch evictions are interleaved in order", func() {
			Expect(c.SetMaxSize(2)).To(Succeed())
			es := []store.Entry[string, string]{
				{Key: "k1", Value: "v1"},
				{Key: "k2", Value: "v2"},
				{Key: "k3", Value: "v3"},
			}
			Expect(c.SetAll(es)).To(Succeed())
			tc := (*recs)[0][vt]
			Expect(tc.Inserts).To(HaveLen(3))
			Expect(tc.LRURemoves).To(HaveLen(1))
			Expect(tc.LRURemoves[0].Key).To(Equal("k1"))
			Expect(tc.LRURemoves[0].Order).To(BeNumerically(">", tc.Inserts[2].Order))
		})

		It("clears are recorded oldest first", func() {
			keys := Put(3)
			ExpectHit(keys[0], valueOf(keys[0]))
			Expect(c.Clear()).To(Succeed())
			cleared := (*recs)[len(*recs)-1][vt].ClearRemoves
			Expect(cleared).To(HaveLen(3))
			Expect(cleared[0].Key).To(Equal(keys[1]))
			Expect(cleared[1].Key).To(Equal(keys[2]))
			Expect(cleared[2].Key).To(Equal(keys[0]))
		})

		It("deletes are recorded even when absent", func() {
			existed, err := c.Delete("nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeFalse())
			Expect(*recs).To(HaveLen(1))
			dr := (*recs)[0][vt].DeleteRemoves
			Expect(dr).To(HaveLen(1))
			Expect(dr[0].Key).To(Equal("nope"))
			Expect(dr[0].Value).To(BeNil())
		})

		It("deletes through alternate keys record the primary", func() {
			Expect(c.Set("p", "v", "a")).To(Succeed())
			_, err := c.Delete("a")
			Expect(err).NotTo(HaveOccurred())
			dr := (*recs)[1][vt].DeleteRemoves
			Expect(dr[0].Key).To(Equal("p"))
		})

		It("resize evictions are recorded oldest first", func() {
			keys := Put(3)
			Expect(c.SetMaxSize(1)).To(Succeed())
			lru := (*recs)[3][vt].LRURemoves
			Expect(lru).To(HaveLen(2))
			Expect(lru[0].Key).To(Equal(keys[0]))
			Expect(lru[1].Key).To(Equal(keys[1]))
		})

		Context("with eviction reports off", func() {
			BeforeEach(func() {
				conf.ReportLRUEvictions = boolPtr(false)
			})
			It("drops lruRemove facts only", func() {
				Put(4)
				Expect(*recs).To(HaveLen(4))
				for _, rec := range *recs {
					Expect(rec[vt].LRURemoves).To(BeEmpty())
					Expect(rec[vt].Inserts).To(HaveLen(1))
				}
			})

			It("shrink evicts silently too", func() {
				Put(3)
				Expect(c.SetMaxSize(1)).To(Succeed())
				Expect(c.Len()).To(Equal(1))
				Expect(*recs).To(HaveLen(3), "only the inserts may dispatch")
				for _, rec := range *recs {
					Expect(rec[vt].LRURemoves).To(BeEmpty())
				}
			})
		})

		Context("with clear reports off", func() {
			BeforeEach(func() {
				conf.ReportClears = boolPtr(false)
			})
			It("clear dispatches nothing at all", func() {
				Put(2)
				Expect(c.Clear()).To(Succeed())
				Expect(*recs).To(HaveLen(2), "only the inserts may dispatch")
				Expect(c.Len()).To(BeZero())
			})
		})

		It("mutations stand when a subscriber fails", func() {
			rejected := errors.New("subscriber rejected")
			r.Bus().Subscribe(func(events.Record) error {
				return rejected
			}, vt)
			err := c.Set("k", "v")
			Expect(err).To(HaveOccurred())
			serr := SubscriberErrorOf(err)
			Expect(serr).NotTo(BeNil())
			Expect(serr.Errors()).To(ConsistOf(rejected))
			ExpectHit("k", "v")

			existed, derr := c.Delete("k")
			Expect(existed).To(BeTrue(), "delete applies despite the callback failure")
			Expect(SubscriberErrorOf(derr)).NotTo(BeNil())
			Expect(c.Has("k")).To(BeFalse())
		})
	})

	Context("stats", func() {
		It("counts hits, misses and evictions", func() {
			keys := Put(4)
			ExpectHit(keys[3], valueOf(keys[3]))
			c.Peek(keys[2])
			_, ok := c.Get("nope")
			Expect(ok).To(BeFalse())

			st := c.Stats()
			Expect(st.Hits).To(BeEquivalentTo(2))
			Expect(st.Misses).To(BeEquivalentTo(1))
			Expect(st.Evictions).To(BeEquivalentTo(1))
		})
	})
})
