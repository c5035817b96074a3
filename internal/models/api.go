package models

import "encoding/json"

// --- Ozon Seller API ---

type OzonPricesRequest struct {
	Cursor string          `json:"cursor"`
	Filter OzonPriceFilter `json:"filter"`
	Limit  int             `json:"limit"`
}

type OzonPriceFilter struct {
	OfferID    []string `json:"offer_id"`
	Visibility string   `json:"visibility"`
}

// Цены Ozon приходят то строкой, то числом, поэтому поля остаются сырыми.
type OzonPricesResponse struct {
	Items []struct {
		OfferID string `json:"offer_id"`
		Price   struct {
			Price                json.RawMessage `json:"price"`
			MarketingSellerPrice json.RawMessage `json:"marketing_seller_price"`
		} `json:"price"`
	} `json:"items"`
	Cursor string `json:"cursor"`
}

// --- Wildberries discounts-prices API ---

type GoodsPricesResponse struct {
	Data struct {
		ListGoods []struct {
			NmID       int        `json:"nmID"`
			VendorCode string     `json:"vendorCode"`
			Sizes      []GoodSize `json:"sizes"`
		} `json:"listGoods"`
	} `json:"data"`
}

type GoodSize struct {
	SizeID          int     `json:"sizeID"`
	Price           int     `json:"price"`
	DiscountedPrice float64 `json:"discountedPrice"`
	TechSizeName    string  `json:"techSizeName"`
}

// --- Parser service ---

type ParserProduct struct {
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Linkset   []string `json:"linkset"`
	AccountID string   `json:"account_id"`
}

type SendOrderRequest struct {
	APIKey    string          `json:"apikey"`
	RegionID  string          `json:"regionid"`
	Market    Market          `json:"market"`
	UserLabel string          `json:"userlabel"`
	Products  []ParserProduct `json:"products"`
}

type LastTasksRequest struct {
	APIKey string `json:"apikey"`
	Limit  int    `json:"limit"`
}
