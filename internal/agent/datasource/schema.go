package datasource

import (
	"fmt"
	"strings"

	"github.com/Chative-insight/server/internal/agent/model"
)

// TableInfo documents one table for query generation.
type TableInfo struct {
	Name        string
	Description string
	Columns     []string
}

// Example is a question and the query that answers it.
type Example struct {
	Question string
	SQL      string
}

// Tables is the e-commerce schema exposed to query generation.
var Tables = []TableInfo{
	{"orders", "Order details and status tracking", []string{
		"order_id", "customer_id", "order_status", "order_purchase_timestamp", "order_approved_at",
		"order_delivered_carrier_date", "order_delivered_customer_date", "order_estimated_delivery_date",
	}},
	{"order_items", "Product items in each order with pricing", []string{
		"order_id", "order_item_id", "product_id", "seller_id", "shipping_limit_date", "price", "freight_value",
	}},
	{"order_payments", "Payment information for orders", []string{
		"order_id", "payment_sequential", "payment_type", "payment_installments", "payment_value",
	}},
	{"order_reviews", "Customer reviews and ratings", []string{
		"review_id", "order_id", "review_score", "review_comment_title", "review_comment_message",
		"review_creation_date", "review_answer_timestamp",
	}},
	{"customers", "Customer information and location", []string{
		"customer_id", "customer_unique_id", "customer_zip_code_prefix", "customer_city", "customer_state",
	}},
	{"sellers", "Seller details and location", []string{
		"seller_id", "seller_zip_code_prefix", "seller_city", "seller_state",
	}},
	{"products", "Product catalog with dimensions and categories", []string{
		"product_id", "product_category_name", "product_name_length", "product_description_length",
		"product_photos_qty", "product_weight_g", "product_length_cm", "product_height_cm", "product_width_cm",
	}},
	{"product_category_name_translation", "Portuguese to English category translations", []string{
		"product_category_name", "product_category_name_english",
	}},
	{"geolocation", "Brazilian zip code geolocation data", []string{
		"geolocation_zip_code_prefix", "geolocation_lat", "geolocation_lng", "geolocation_city", "geolocation_state",
	}},
}

const schemaNotes = `IMPORTANT NOTES:
1. Product categories are stored in PORTUGUESE in the 'products' table.
2. Use the 'product_category_name_translation' table for English category names; filter with LIKE on both names.
3. Common category mappings: electronics -> eletronicos, informatica_acessorios; furniture -> moveis_decoracao; toys -> brinquedos.
4. The primary date column is orders.order_purchase_timestamp. The dataset spans 2016 to 2018, so relative
   ranges are anchored on DATE((SELECT MAX(order_purchase_timestamp) FROM orders), '-N months').
5. Year/month buckets use STRFTIME('%Y-%m', date).`

// Examples are the few-shot queries shown to the generator.
var Examples = []Example{
	{
		Question: "What are the top 5 product categories by sales?",
		SQL: `SELECT COALESCE(pct.product_category_name_english, p.product_category_name) AS category,
       COUNT(*) AS sales_count, SUM(oi.price) AS total_revenue
FROM order_items oi
JOIN products p ON oi.product_id = p.product_id
LEFT JOIN product_category_name_translation pct ON p.product_category_name = pct.product_category_name
GROUP BY category ORDER BY total_revenue DESC LIMIT 5;`,
	},
	{
		Question: "Show average delivery time by state",
		SQL: `SELECT c.customer_state,
       AVG(JULIANDAY(o.order_delivered_customer_date) - JULIANDAY(o.order_purchase_timestamp)) AS avg_delivery_days
FROM orders o JOIN customers c ON o.customer_id = c.customer_id
WHERE o.order_delivered_customer_date IS NOT NULL
GROUP BY c.customer_state ORDER BY avg_delivery_days;`,
	},
	{
		Question: "Show sales by month for the last 6 months",
		SQL: `SELECT STRFTIME('%Y-%m', o.order_purchase_timestamp) AS month, COUNT(*) AS order_count, SUM(oi.price) AS revenue
FROM orders o JOIN order_items oi ON o.order_id = oi.order_id
WHERE o.order_purchase_timestamp >= DATE((SELECT MAX(order_purchase_timestamp) FROM orders), '-6 months')
GROUP BY month ORDER BY month DESC;`,
	},
	{
		Question: "Show me sales for furniture products",
		SQL: `SELECT COALESCE(pct.product_category_name_english, p.product_category_name) AS category,
       COUNT(*) AS order_count, SUM(oi.price) AS total_revenue
FROM order_items oi
JOIN products p ON oi.product_id = p.product_id
LEFT JOIN product_category_name_translation pct ON p.product_category_name = pct.product_category_name
WHERE pct.product_category_name_english LIKE '%furniture%' OR p.product_category_name LIKE '%moveis%'
GROUP BY category;`,
	},
}

// StaticSchema serves the built-in schema description and examples.
type StaticSchema struct {
	Tables   []TableInfo
	Examples []Example
}

func NewStaticSchema() *StaticSchema {
	return &StaticSchema{Tables: Tables, Examples: Examples}
}

func (s *StaticSchema) SchemaDescription() string {
	var b strings.Builder
	b.WriteString("Database Schema:\n\n")
	b.WriteString(schemaNotes)
	b.WriteString("\n\n")
	for _, t := range s.Tables {
		fmt.Fprintf(&b, "Table: %s\nDescription: %s\nColumns: %s\n\n", t.Name, t.Description, strings.Join(t.Columns, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *StaticSchema) ExampleQueries() string {
	var b strings.Builder
	b.WriteString("Example Queries:\n\n")
	for i, ex := range s.Examples {
		fmt.Fprintf(&b, "Example %d:\nQuestion: %s\nSQL: %s\n\n", i+1, ex.Question, ex.SQL)
	}
	return strings.TrimRight(b.String(), "\n")
}

var _ model.SchemaSource = (*StaticSchema)(nil)
