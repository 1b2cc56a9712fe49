package memory

import (
	"time"

	"salesms/backend/internal/domain"
)

// seedSales is the demo dataset used when the server runs without a database
// or CSV export.
func seedSales() []domain.Sale {
	type row struct {
		id, customer, phone, gender string
		age                         int
		region, category, tags      string
		qty                         int
		price, discountPct          float64
		payment, employee           string
		date                        domain.Date
	}
	rows := []row{
		{"T-0001", "Neha Yadav", "9720639364", "Female", 25, "South", "Clothing", "organic,skincare", 5, 1200, 10, "Credit Card", "Harsh Agarwal", domain.NewDate(2023, time.March, 23)},
		{"T-0002", "Arjun Mehta", "9811122233", "Male", 34, "North", "Electronics", "gadgets,wireless", 1, 24999, 5, "UPI", "Harsh Agarwal", domain.NewDate(2023, time.March, 23)},
		{"T-0003", "Kavya Reddy", "9845566778", "Female", 41, "South", "Beauty", "skincare", 3, 650, 0, "Cash", "Priya Nair", domain.NewDate(2023, time.April, 2)},
		{"T-0004", "Rohan Gupta", "9900011122", "Male", 29, "West", "Electronics", "gadgets", 2, 1999, 15, "Debit Card", "Priya Nair", domain.NewDate(2023, time.April, 11)},
		{"T-0005", "Ishita Sharma", "9123456780", "Female", 22, "East", "Clothing", "fashion,casual", 4, 899, 20, "UPI", "Harsh Agarwal", domain.NewDate(2023, time.May, 6)},
		{"T-0006", "Vikram Singh", "9988776655", "Male", 52, "North", "Home", "kitchen", 1, 3499, 0, "Net Banking", "Sanjay Rao", domain.NewDate(2023, time.May, 6)},
		{"T-0007", "Ananya Iyer", "9876501234", "Female", 37, "Central", "Beauty", "organic,makeup", 6, 450, 10, "Wallet", "Sanjay Rao", domain.NewDate(2023, time.June, 14)},
		{"T-0008", "Karan Patel", "9001234567", "Male", 45, "West", "Home", "decor", 2, 2199, 5, "Credit Card", "Priya Nair", domain.NewDate(2023, time.June, 30)},
		{"T-0009", "Meera Joshi", "9345678901", "Female", 31, "East", "Electronics", "wireless,accessories", 3, 1299, 0, "UPI", "Harsh Agarwal", domain.NewDate(2023, time.July, 8)},
		{"T-0010", "Aditya Kumar", "9456123789", "Male", 27, "Central", "Clothing", "casual", 2, 1499, 25, "Cash", "Sanjay Rao", domain.NewDate(2023, time.July, 19)},
		{"T-0011", "Sneha Das", "9567812340", "Female", 48, "North", "Beauty", "skincare,premium", 1, 3999, 10, "Debit Card", "Priya Nair", domain.NewDate(2023, time.August, 3)},
		{"T-0012", "Rahul Verma", "9678901234", "Male", 39, "South", "Home", "kitchen,premium", 4, 799, 0, "Wallet", "Harsh Agarwal", domain.NewDate(2023, time.August, 3)},
	}

	sales := make([]domain.Sale, 0, len(rows))
	for i, r := range rows {
		total := float64(r.qty) * r.price
		final := total * (1 - r.discountPct/100)
		sales = append(sales, domain.Sale{
			TransactionID:      r.id,
			Date:               r.date,
			CustomerID:         "C-" + r.id[2:],
			CustomerName:       r.customer,
			PhoneNumber:        r.phone,
			Gender:             r.gender,
			Age:                r.age,
			CustomerRegion:     r.region,
			ProductID:          "P-" + string(rune('A'+i)),
			ProductCategory:    r.category,
			Tags:               r.tags,
			Quantity:           r.qty,
			PricePerUnit:       r.price,
			DiscountPercentage: r.discountPct,
			TotalAmount:        total,
			FinalAmount:        final,
			PaymentMethod:      r.payment,
			EmployeeName:       r.employee,
		})
	}
	return sales
}
