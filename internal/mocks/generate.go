package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Store --dir ../domain/window --output domain/window --outpkg windowmock --filename store_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Repository --dir ../domain/warehouse --output domain/warehouse --outpkg warehousemock --filename repository_mock.go
