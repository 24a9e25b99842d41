package routes

import (
	"net/http"

	"fernway/admin"
	"fernway/auth"
	"fernway/carts"
	"fernway/checkout"
	"fernway/customers"
	"fernway/giftcards"
	"fernway/inventory"
	"fernway/middleware"
	"fernway/products"
	"fernway/ratelim"
	"fernway/reports"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/mongo"
)

func AddStaticRoutes(router *httprouter.Router) {
	router.ServeFiles("/productpic/*filepath", http.Dir("static/productpic"))
}

func AddAuthRoutes(router *httprouter.Router, svc *auth.Service, mw *middleware.Auth, rl *ratelim.RateLimiter) {
	router.POST("/api/auth/signup", rl.Limit(svc.Signup))
	router.POST("/api/auth/login", rl.Limit(svc.Login))
	router.POST("/api/auth/logout", mw.Authenticate(svc.Logout))
	router.POST("/api/auth/refresh", rl.Limit(mw.Authenticate(svc.Refresh)))
	router.POST("/api/auth/reset-password", rl.Limit(svc.ResetPassword))
	router.POST("/api/auth/admin-reset-password", mw.RequireAdmin(svc.AdminResetPassword))
	router.GET("/api/auth/me", mw.Authenticate(svc.Me))
}

func AddProductRoutes(router *httprouter.Router, svc *products.Service, mw *middleware.Auth) {
	// Collections live under their own prefix; a static sibling of :id would
	// not route.
	router.GET("/api/products", svc.List)
	router.GET("/api/products/:id", svc.Get)
	router.GET("/api/collections/new-arrivals", svc.NewArrivals)
	router.GET("/api/collections/sale", svc.SaleItems)
	router.GET("/api/search/suggestions", svc.Suggest)

	router.POST("/api/products", mw.RequireAdmin(svc.Create))
	router.PUT("/api/products/:id", mw.RequireAdmin(svc.Update))
	router.DELETE("/api/products", mw.RequireAdmin(svc.DeleteAll))
	router.DELETE("/api/products/:id", mw.RequireAdmin(svc.Delete))
	router.POST("/api/products/:id/images", mw.RequireAdmin(svc.UploadImage))
	router.DELETE("/api/products/:id/images/:imageId", mw.RequireAdmin(svc.RemoveImage))
}

func AddCartRoutes(router *httprouter.Router, svc *carts.Service, mw *middleware.Auth) {
	router.POST("/api/cart", mw.OptionalAuth(svc.CreateCart))
	router.GET("/api/cart/:id", svc.GetCart)
	router.POST("/api/cart/:id/items", svc.AddItem)
	router.PUT("/api/cart/:id/items/:index", svc.UpdateItem)
	router.DELETE("/api/cart/:id/items/:index", svc.RemoveItem)
	router.POST("/api/cart/:id/discount", svc.ApplyDiscount)
	router.POST("/api/cart/:id/giftcard", svc.ApplyGiftCard)
}

func AddCheckoutRoutes(router *httprouter.Router, svc *checkout.Service, idem *mongo.Collection, mw *middleware.Auth, rl *ratelim.RateLimiter) {
	router.POST("/api/checkout", rl.Limit(mw.OptionalAuth(checkout.Idempotency(idem, svc.Checkout))))
	router.POST("/api/checkout/direct", rl.Limit(mw.OptionalAuth(checkout.Idempotency(idem, svc.Direct))))
	router.GET("/api/checkout/preview/:id", svc.Preview)
	router.GET("/api/payments/:id", mw.Authenticate(svc.GetPayment))
	router.POST("/api/webhooks/payment", svc.Webhook)
}

func AddGiftCardRoutes(router *httprouter.Router, svc *giftcards.Service, mw *middleware.Auth) {
	router.POST("/api/giftcards", svc.Create)
	router.GET("/api/giftcards/:code", svc.Get)
	router.GET("/api/giftcards/:code/voucher", svc.PrintVoucher)
	router.POST("/api/giftcards/redeem", mw.Authenticate(svc.Redeem))

	router.GET("/api/admin/giftcards", mw.RequireAdmin(svc.List))
}

func AddCustomerRoutes(router *httprouter.Router, svc *customers.Service, mw *middleware.Auth) {
	router.GET("/api/customers/me", mw.Authenticate(svc.Get))
	router.PUT("/api/customers/me", mw.Authenticate(svc.Update))
	router.GET("/api/customers/me/orders", mw.Authenticate(svc.ListOrders))
	router.PUT("/api/customers/me/preferences", mw.Authenticate(svc.UpdatePreferences))
	router.PUT("/api/customers/me/subscriptions", mw.Authenticate(svc.UpdateSubscriptions))

	router.POST("/api/customers/me/favorites/:productId", mw.Authenticate(svc.AddFavorite))
	router.DELETE("/api/customers/me/favorites/:productId", mw.Authenticate(svc.RemoveFavorite))
	router.DELETE("/api/customers/me/favorites", mw.Authenticate(svc.ClearFavorites))
}

func AddAdminRoutes(router *httprouter.Router, svc *admin.Service, stream *admin.Stream, mw *middleware.Auth) {
	router.GET("/api/admin/orders", mw.RequireAdmin(svc.ListOrders))
	router.GET("/api/admin/orders/:id", mw.RequireAdmin(svc.GetOrder))
	router.PUT("/api/admin/orders/:id/status", mw.RequireAdmin(svc.UpdateStatus))
	router.POST("/api/admin/orders/:id/cancel", mw.RequireAdmin(svc.CancelOrder))
	router.GET("/api/admin/customers", mw.RequireAdmin(svc.ListCustomers))

	router.GET("/api/admin/stream/orders", mw.RequireAdmin(stream.Connect))
}

func AddInventoryRoutes(router *httprouter.Router, svc *inventory.Service, mw *middleware.Auth) {
	router.GET("/api/admin/inventory", mw.RequireAdmin(svc.List))
	router.POST("/api/admin/inventory/:sku/restock", mw.RequireAdmin(svc.Restock))
	router.PUT("/api/admin/inventory/:sku/threshold", mw.RequireAdmin(svc.UpdateThreshold))
}

func AddReportRoutes(router *httprouter.Router, svc *reports.Service, mw *middleware.Auth) {
	router.GET("/api/admin/reports/sales", mw.RequireAdmin(svc.Sales))
	router.GET("/api/admin/reports/inventory", mw.RequireAdmin(svc.InventoryReport))
}
