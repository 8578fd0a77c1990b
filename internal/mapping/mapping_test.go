package mapping_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/port-labs/ocean-core/internal/entity"
	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
	"github.com/port-labs/ocean-core/internal/mapping"
)

func TestMapping(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "mapping suite")
}

func mustCompile(rc entity.ResourceConfig) *mapping.Compiled {
	c, err := mapping.Compile(rc)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return c
}

var _ = Describe("Compile", func() {
	It("fails with a ConfigError on a syntactically invalid expression", func() {
		_, err := mapping.Compile(entity.ResourceConfig{
			Kind: "issue",
			Port: entity.PortEntityConfig{Entity: entity.EntityMappings{
				Identifier: ".id", Blueprint: "jiraIssue",
			}},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = mapping.Compile(entity.ResourceConfig{
			Kind: "issue",
			Port: entity.PortEntityConfig{Entity: entity.EntityMappings{
				Identifier: ".id | ", Blueprint: "jiraIssue",
			}},
		})
		Expect(err).To(HaveOccurred())
		var cfgErr oceanerrors.ConfigError
		Expect(err).To(BeAssignableToTypeOf(cfgErr))
	})
})

var _ = Describe("EvaluateBatch", func() {
	rc := entity.ResourceConfig{
		Kind: "issue",
		Selector: entity.Selector{Query: ".summary != null"},
		Port: entity.PortEntityConfig{
			Entity: entity.EntityMappings{
				Identifier: ".id",
				Title:      ".summary",
				Blueprint:  "jiraIssue",
				Properties: map[string]string{"summary": ".summary"},
				Relations:  map[string]string{"assignees": ".assignees"},
			},
		},
	}

	It("produces one entity per matching record (S1)", func() {
		c := mustCompile(rc)
		batch := []any{
			map[string]any{"id": "A", "summary": "a"},
			map[string]any{"id": "B", "summary": "b"},
		}

		res := mapping.EvaluateBatch(c, batch)

		Expect(res.Failures).To(BeEmpty())
		Expect(res.Entities).To(HaveLen(2))
		Expect(res.Entities[0]).To(Equal(entity.Entity{
			Identifier: "A", Blueprint: "jiraIssue", Title: "a",
			Properties: map[string]any{"summary": "a"},
			Relations:  map[string]any{},
		}))
	})

	It("discards records the selector rejects (universal invariant 1)", func() {
		c := mustCompile(rc)
		batch := []any{
			map[string]any{"id": "A", "summary": "a"},
			map[string]any{"id": "B"},
		}

		res := mapping.EvaluateBatch(c, batch)

		Expect(res.Entities).To(HaveLen(1))
		Expect(res.Entities[0].Identifier).To(Equal("A"))
	})

	It("resolves string and array relation results", func() {
		c := mustCompile(rc)
		batch := []any{
			map[string]any{"id": "A", "summary": "a", "assignees": []any{"alice", "bob"}},
		}

		res := mapping.EvaluateBatch(c, batch)

		Expect(res.Entities[0].Relations["assignees"]).To(Equal([]string{"alice", "bob"}))
	})

	It("coerces numeric identifiers to strings", func() {
		rcNum := rc
		batch := []any{
			map[string]any{"id": 42, "summary": "a"},
		}
		c := mustCompile(rcNum)

		res := mapping.EvaluateBatch(c, batch)

		Expect(res.Entities[0].Identifier).To(Equal("42"))
	})

	It("drops the entity and counts a mapping failure when identifier is null", func() {
		c := mustCompile(rc)
		batch := []any{
			map[string]any{"id": nil, "summary": "a"},
		}

		res := mapping.EvaluateBatch(c, batch)

		Expect(res.Entities).To(BeEmpty())
		Expect(res.Failures).To(HaveLen(1))
		Expect(res.Failures[0].Expression).To(Equal("identifier"))
	})

	It("does not abort the batch when one record fails mapping", func() {
		c := mustCompile(rc)
		batch := []any{
			map[string]any{"id": nil, "summary": "a"},
			map[string]any{"id": "B", "summary": "b"},
		}

		res := mapping.EvaluateBatch(c, batch)

		Expect(res.Entities).To(HaveLen(1))
		Expect(res.Failures).To(HaveLen(1))
	})

	Context("items_to_parse", func() {
		itemsRC := entity.ResourceConfig{
			Kind: "comment",
			Port: entity.PortEntityConfig{
				ItemsToParse: ".comments",
				Entity: entity.EntityMappings{
					Identifier: ".item.id",
					Blueprint:  "jiraComment",
				},
			},
		}

		It("expands one record into N entities", func() {
			c := mustCompile(itemsRC)
			batch := []any{
				map[string]any{"comments": []any{
					map[string]any{"id": "c1"},
					map[string]any{"id": "c2"},
				}},
			}

			res := mapping.EvaluateBatch(c, batch)

			Expect(res.Entities).To(HaveLen(2))
			Expect(res.Entities[0].Identifier).To(Equal("c1"))
			Expect(res.Entities[1].Identifier).To(Equal("c2"))
		})

		It("fails with a MappingError when items_to_parse does not yield an array", func() {
			c := mustCompile(itemsRC)
			batch := []any{
				map[string]any{"comments": "not-an-array"},
			}

			res := mapping.EvaluateBatch(c, batch)

			Expect(res.Entities).To(BeEmpty())
			Expect(res.Failures).To(HaveLen(1))
			Expect(res.Failures[0].Expression).To(Equal("items_to_parse"))
		})
	})
})
