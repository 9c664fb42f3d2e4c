package notify

// Product 是离线提示使用的商品展示信息，不代表 POS 库存数据
type Product struct {
	ID          string
	DisplayName string
	Glyph       string
}

// Catalog 以商品 ID 精确匹配（区分大小写）
type Catalog map[string]Product

func (c Catalog) Lookup(id string) (Product, bool) {
	p, ok := c[id]
	return p, ok
}

// DefaultCatalog 返回模拟器内置的商品表
func DefaultCatalog() Catalog {
	products := []Product{
		{ID: "bananas", DisplayName: "Bananas", Glyph: "🍌"},
		{ID: "apples", DisplayName: "Apples", Glyph: "🍎"},
		{ID: "bread", DisplayName: "Bread", Glyph: "🍞"},
		{ID: "milk", DisplayName: "Milk", Glyph: "🥛"},
		{ID: "eggs", DisplayName: "Eggs", Glyph: "🥚"},
		{ID: "chicken", DisplayName: "Chicken", Glyph: "🍗"},
		{ID: "rice", DisplayName: "Rice", Glyph: "🍚"},
		{ID: "tomatoes", DisplayName: "Tomatoes", Glyph: "🍅"},
		{ID: "cheese", DisplayName: "Cheese", Glyph: "🧀"},
		{ID: "cereal", DisplayName: "Cereal", Glyph: "🥣"},
		{ID: "orange-juice", DisplayName: "Orange Juice", Glyph: "🧃"},
		{ID: "pasta", DisplayName: "Pasta", Glyph: "🍝"},
	}

	c := make(Catalog, len(products))
	for _, p := range products {
		c[p.ID] = p
	}
	return c
}
