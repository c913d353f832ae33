package blk_test

import (
	blk "github.com/axiangcoding/wt-blk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Text", func() {
	It("should render nested blocks with tab indentation", func() {
		root := blk.NewBlock("")
		root.Add("str", blk.Str("hello"))
		root.Add("int", blk.Int(42))
		alpha := root.AddBlock("alpha")
		alpha.Add("float", blk.Float(1.25))
		alpha.Add("vec2i", blk.Int2{3, 4})
		alpha.AddBlock("inner").Add("on", blk.Bool(true))

		Expect(root.Text()).To(Equal("str:t=\"hello\"\n" +
			"int:i=42\n" +
			"alpha {\n" +
			"\tfloat:r=1.25\n" +
			"\tvec2i:ip2=3, 4\n" +
			"\tinner {\n" +
			"\t\ton:b=true\n" +
			"\t}\n" +
			"}\n"))
	})

	It("should use the engine's per-kind markers", func() {
		cases := []struct {
			want string
			v    blk.Value
		}{
			{`a:t="x"`, blk.Str("x")},
			{`a:i=-7`, blk.Int(-7)},
			{`a:i64=64`, blk.Long(64)},
			{`a:r=0.5`, blk.Float(0.5)},
			{`a:p2=1.25, 2.5`, blk.Float2{1.25, 2.5}},
			{`a:p3=1, 2, 3`, blk.Float3{1, 2, 3}},
			{`a:p4=1.25, 2.5, 5, 10`, blk.Float4{1.25, 2.5, 5, 10}},
			{`a:ip2=3, 4`, blk.Int2{3, 4}},
			{`a:ip3=-1, 0, 1`, blk.Int3{-1, 0, 1}},
			{`a:b=false`, blk.Bool(false)},
			{`a:c=3, 2, 1, 4`, blk.Color{R: 3, G: 2, B: 1, A: 4}},
			{`a:m=[1, 0, 0] [0, 1, 0] [0, 0, 1] [1.25, 2.5, 5]`, blk.Float12{1, 0, 0, 0, 1, 0, 0, 0, 1, 1.25, 2.5, 5}},
		}
		for _, tc := range cases {
			root := blk.NewBlock("")
			root.Add("a", tc.v)
			Expect(root.Text()).To(Equal(tc.want+"\n"), "for %T", tc.v)
		}
	})
})

var _ = Describe("JSON", func() {
	It("should preserve order and duplicate keys", func() {
		root := blk.NewBlock("")
		root.Add("a", blk.Int(1))
		root.Add("a", blk.Int(2))
		root.AddBlock("b")

		Expect(string(root.JSON())).To(Equal("{\n" +
			"  \"a\": 1,\n" +
			"  \"a\": 2,\n" +
			"  \"b\": {}\n" +
			"}"))
	})

	It("should indent nested blocks", func() {
		root := blk.NewBlock("")
		root.AddBlock("b").Add("c", blk.Str("x"))

		Expect(string(root.JSON())).To(Equal("{\n" +
			"  \"b\": {\n" +
			"    \"c\": \"x\"\n" +
			"  }\n" +
			"}"))
	})

	It("should render every value kind as plain JSON", func() {
		root := blk.NewBlock("")
		root.Add("color", blk.Color{R: 3, G: 2, B: 1, A: 4})
		root.Add("vec", blk.Float3{1.25, 2.5, 5})
		root.Add("on", blk.Bool(true))
		root.Add("m", blk.Float12{1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0})

		Expect(string(root.JSON())).To(Equal("{\n" +
			"  \"color\": [3, 2, 1, 4],\n" +
			"  \"vec\": [1.25, 2.5, 5],\n" +
			"  \"on\": true,\n" +
			"  \"m\": [[1, 0, 0], [0, 1, 0], [0, 0, 1], [0, 0, 0]]\n" +
			"}"))
	})

	It("should render an empty root as an empty object", func() {
		Expect(string(blk.NewBlock("").JSON())).To(Equal("{}"))
	})
})
