package main

import (
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Generates small airline and customer-support tables for trying the
// shipped queries:
//
//	cd testdata && go run generate.go
//	aggcat run --all --data-dir testdata -f table

type SupportTicket struct {
	Category string `parquet:"category"`
	Flags    string `parquet:"flags"`
}

type FlightDelay struct {
	Airline   string `parquet:"Airline"`
	Date      string `parquet:"Date"`
	Origin    string `parquet:"Origin"`
	Dest      string `parquet:"Dest"`
	Cancelled int64  `parquet:"Cancelled"`
	ArrDelay  *int64 `parquet:"ArrDelay,optional"`
}

type StockPrice struct {
	StockDate string  `parquet:"StockDate"`
	Open      float64 `parquet:"Open"`
	High      float64 `parquet:"High"`
	Low       float64 `parquet:"Low"`
	Close     float64 `parquet:"Close"`
}

type Booking struct {
	Route              string  `parquet:"route"`
	SalesChannel       string  `parquet:"sales_channel"`
	FlightDuration     float64 `parquet:"flight_duration"`
	LengthOfStay       int64   `parquet:"length_of_stay"`
	WantsExtraBaggage  int64   `parquet:"wants_extra_baggage"`
	WantsPreferredSeat int64   `parquet:"wants_preferred_seat"`
	WantsInFlightMeals int64   `parquet:"wants_in_flight_meals"`
	BookingComplete    int64   `parquet:"booking_complete"`
}

type Review struct {
	Airline               string `parquet:"Airline"`
	Class                 string `parquet:"Class"`
	TypeofTraveller       string `parquet:"TypeofTraveller"`
	MonthFlown            string `parquet:"MonthFlown"`
	ReviewDate            string `parquet:"ReviewDate"`
	Reviews               string `parquet:"Reviews"`
	Recommended           string `parquet:"Recommended"`
	SeatComfort           int64  `parquet:"SeatComfort"`
	StaffService          int64  `parquet:"StaffService"`
	FoodnBeverages        int64  `parquet:"FoodnBeverages"`
	InflightEntertainment int64  `parquet:"InflightEntertainment"`
	ValueForMoney         int64  `parquet:"ValueForMoney"`
	OverallRating         int64  `parquet:"OverallRating"`
}

var (
	airlines    = []string{"Singapore Airlines", "Qatar Airways", "Emirates", "ANA"}
	carriers    = []string{"SQ", "QR", "EK", "NH"}
	airports    = []string{"SIN", "DOH", "DXB", "HND", "LHR", "SYD"}
	classes     = []string{"Economy Class", "Premium Economy", "Business Class", "First Class"}
	travellers  = []string{"Solo Leisure", "Couple Leisure", "Family Leisure", "Business"}
	categories  = []string{"ORDER", "REFUND", "CANCEL", "SHIPPING", "order", "Where is my parcel?"}
	flagLetters = []rune("BQWZLIKMCE")
	routes      = []string{"AKLDEL", "AKLKUL", "PENTPE", "SINSYD", "DELSYD"}
	channels    = []string{"Internet", "Mobile"}
	phrases     = []string{
		"The food was cold and the meal portions were small",
		"Seat was cramped and legroom poor",
		"Cabin crew were rude and the service slow",
		"Flight delayed by three hours",
		"Lost baggage and no refund offered",
		"Booking website kept failing",
		"Great staff, comfortable seat, excellent meal",
		"Entertainment system broken",
	}
)

func main() {
	rng := rand.New(rand.NewPCG(2024, 1))

	tickets := make([]SupportTicket, 200)
	for i := range tickets {
		var flags []rune
		for _, l := range flagLetters {
			if rng.IntN(4) == 0 {
				flags = append(flags, l)
			}
		}
		tickets[i] = SupportTicket{Category: pick(rng, categories), Flags: string(flags)}
	}
	write("customer_support.parquet", tickets)

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	flights := make([]FlightDelay, 500)
	for i := range flights {
		f := FlightDelay{
			Airline: pick(rng, carriers),
			Date:    start.AddDate(0, 0, rng.IntN(365)).Format("02-01-2006"),
			Origin:  pick(rng, airports),
			Dest:    pick(rng, airports),
		}
		if rng.IntN(20) == 0 {
			f.Cancelled = 1
		} else {
			delay := int64(rng.IntN(120) - 20)
			f.ArrDelay = &delay
		}
		flights[i] = f
	}
	write("flight_delay.parquet", flights)

	var prices []StockPrice
	price := 5.0
	for d := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC); d.Year() < 2024; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		open := price
		price += (rng.Float64() - 0.5) * 0.1
		prices = append(prices, StockPrice{
			StockDate: d.Format("01/02/2006"),
			Open:      round2(open),
			High:      round2(max(open, price) + rng.Float64()*0.05),
			Low:       round2(min(open, price) - rng.Float64()*0.05),
			Close:     round2(price),
		})
	}
	write("sia_stock.parquet", prices)

	bookings := make([]Booking, 300)
	for i := range bookings {
		bookings[i] = Booking{
			Route:              pick(rng, routes),
			SalesChannel:       pick(rng, channels),
			FlightDuration:     round2(4 + rng.Float64()*6),
			LengthOfStay:       int64(1 + rng.IntN(40)),
			WantsExtraBaggage:  int64(rng.IntN(2)),
			WantsPreferredSeat: int64(rng.IntN(2)),
			WantsInFlightMeals: int64(rng.IntN(2)),
			BookingComplete:    int64(rng.IntN(2)),
		}
	}
	write("customer_booking.parquet", bookings)

	reviews := make([]Review, 400)
	for i := range reviews {
		flown := time.Date(2018+rng.IntN(6), time.Month(1+rng.IntN(12)), 1, 0, 0, 0, 0, time.UTC)
		rating := int64(1 + rng.IntN(10))
		recommended := "no"
		if rating >= 6 {
			recommended = "yes"
		}
		reviews[i] = Review{
			Airline:               pick(rng, airlines),
			Class:                 pick(rng, classes),
			TypeofTraveller:       pick(rng, travellers),
			MonthFlown:            flown.Format("Jan-06"),
			ReviewDate:            flown.AddDate(0, 0, rng.IntN(60)).Format("02/01/2006"),
			Reviews:               pick(rng, phrases),
			Recommended:           recommended,
			SeatComfort:           int64(1 + rng.IntN(5)),
			StaffService:          int64(1 + rng.IntN(5)),
			FoodnBeverages:        int64(1 + rng.IntN(5)),
			InflightEntertainment: int64(1 + rng.IntN(5)),
			ValueForMoney:         int64(1 + rng.IntN(5)),
			OverallRating:         rating,
		}
	}
	write("airlines_reviews.parquet", reviews)
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func write[T any](name string, rows []T) {
	file, err := os.Create(name)
	if err != nil {
		log.Fatal(err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(rows); err != nil {
		log.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		log.Fatal(err)
	}

	log.Printf("Generated %s with %d rows", name, len(rows))
}
